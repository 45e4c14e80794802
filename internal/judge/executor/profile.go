package executor

import (
	"fmt"
	"time"

	"github.com/google/shlex"

	"veloj/internal/judge/model"
	"veloj/pkg/utils/config"
)

// LanguageProfile describes how one language is materialized, compiled and
// run inside a scratch directory. Command strings are configuration data;
// they are shlex-split once when the registry is built.
type LanguageProfile struct {
	Language   model.Language `yaml:"language"`
	SourceFile string         `yaml:"sourceFile"`
	// Compile is empty for interpreted languages.
	Compile        string          `yaml:"compile"`
	Run            string          `yaml:"run"`
	CompileTimeout config.Duration `yaml:"compileTimeout"`
}

const defaultCompileTimeout = 20 * time.Second

// resolvedProfile holds the parsed argv forms used at execution time.
type resolvedProfile struct {
	sourceFile     string
	compileArgv    []string
	runArgv        []string
	compileTimeout time.Duration
}

// Registry maps languages to resolved profiles.
type Registry struct {
	profiles map[model.Language]resolvedProfile
}

// NewRegistry parses and validates a profile set.
func NewRegistry(profiles []LanguageProfile) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("at least one language profile is required")
	}
	resolved := make(map[model.Language]resolvedProfile, len(profiles))
	for _, p := range profiles {
		if p.SourceFile == "" {
			return nil, fmt.Errorf("profile %s: source file is required", p.Language)
		}
		if p.Run == "" {
			return nil, fmt.Errorf("profile %s: run command is required", p.Language)
		}
		runArgv, err := shlex.Split(p.Run)
		if err != nil {
			return nil, fmt.Errorf("profile %s: parse run command: %w", p.Language, err)
		}
		var compileArgv []string
		if p.Compile != "" {
			compileArgv, err = shlex.Split(p.Compile)
			if err != nil {
				return nil, fmt.Errorf("profile %s: parse compile command: %w", p.Language, err)
			}
		}
		timeout := p.CompileTimeout.Std()
		if timeout <= 0 {
			timeout = defaultCompileTimeout
		}
		resolved[p.Language] = resolvedProfile{
			sourceFile:     p.SourceFile,
			compileArgv:    compileArgv,
			runArgv:        runArgv,
			compileTimeout: timeout,
		}
	}
	return &Registry{profiles: resolved}, nil
}

// Lookup returns the resolved profile for a language.
func (r *Registry) Lookup(lang model.Language) (resolvedProfile, bool) {
	p, ok := r.profiles[lang]
	return p, ok
}

// DefaultProfiles returns the built-in toolchain set.
func DefaultProfiles() []LanguageProfile {
	return []LanguageProfile{
		{
			Language:   model.LangJavaScript,
			SourceFile: "main.js",
			Run:        "node main.js",
		},
		{
			Language:   model.LangPython,
			SourceFile: "main.py",
			Run:        "python3 main.py",
		},
		{
			Language:   model.LangJava,
			SourceFile: "Main.java",
			Compile:    "javac Main.java",
			Run:        "java -Xss64m Main",
		},
		{
			Language:   model.LangCpp,
			SourceFile: "main.cpp",
			Compile:    "g++ -O2 -std=c++17 -o solution main.cpp",
			Run:        "./solution",
		},
		{
			Language:   model.LangC,
			SourceFile: "main.c",
			Compile:    "gcc -O2 -std=c11 -o solution main.c -lm",
			Run:        "./solution",
		},
	}
}
