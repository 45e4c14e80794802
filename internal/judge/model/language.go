package model

import (
	"strings"

	appErr "veloj/pkg/errors"
)

// Language identifies a supported submission language.
type Language string

const (
	LangJavaScript Language = "JAVASCRIPT"
	LangPython     Language = "PYTHON"
	LangJava       Language = "JAVA"
	LangCpp        Language = "CPP"
	LangC          Language = "C"
)

// Languages lists every supported language.
func Languages() []Language {
	return []Language{LangJavaScript, LangPython, LangJava, LangCpp, LangC}
}

// ParseLanguage validates and normalizes a raw language string.
func ParseLanguage(raw string) (Language, error) {
	lang := Language(strings.ToUpper(strings.TrimSpace(raw)))
	switch lang {
	case LangJavaScript, LangPython, LangJava, LangCpp, LangC:
		return lang, nil
	}
	return "", appErr.Newf(appErr.LanguageNotSupported, "language not supported: %s", raw)
}
