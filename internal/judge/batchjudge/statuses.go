package batchjudge

import (
	"fmt"

	"veloj/internal/judge/model"
)

// Judge0 status identifiers. Everything outside the table degrades to a
// runtime error carrying the remote description, so an upgraded remote
// cannot wedge the worker.
const (
	statusInQueue          = 1
	statusProcessing       = 2
	statusAccepted         = 3
	statusWrongAnswer      = 4
	statusTimeLimit        = 5
	statusCompileError     = 6
	statusRuntimeErrorLow  = 7
	statusRuntimeErrorHigh = 12
	statusInternalError    = 13
	statusExecFormatError  = 14
)

// languageIDs maps supported languages to Judge0 language identifiers.
var languageIDs = map[model.Language]int{
	model.LangJavaScript: 63,
	model.LangPython:     71,
	model.LangC:          50,
	model.LangCpp:        54,
	model.LangJava:       62,
}

func languageID(lang model.Language) (int, bool) {
	id, ok := languageIDs[lang]
	return id, ok
}

func isPending(statusID int) bool {
	return statusID == statusInQueue || statusID == statusProcessing
}

// classify maps a terminal remote status to the executor outcome set.
func classify(statusID int, description string) (model.OutcomeStatus, string) {
	switch {
	case statusID == statusAccepted:
		return model.StatusOK, ""
	case statusID == statusWrongAnswer:
		return model.StatusWrongOutput, ""
	case statusID == statusTimeLimit:
		return model.StatusTimeLimit, "time limit exceeded"
	case statusID == statusCompileError:
		return model.StatusCompileError, ""
	case statusID >= statusRuntimeErrorLow && statusID <= statusRuntimeErrorHigh:
		return model.StatusRuntimeError, description
	case statusID == statusInternalError:
		return model.StatusInfraError, "remote judge internal error"
	default:
		if description == "" {
			description = fmt.Sprintf("unrecognized judge status %d", statusID)
		}
		return model.StatusRuntimeError, description
	}
}
