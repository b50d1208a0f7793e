package hook

import (
	"errors"
	"fmt"
)

// Result is the outcome of routing one input.
type Result struct {
	// Handled is false when nothing was bound to the input.
	Handled bool
	Command string
	Value   any
	Message string
	Err     error
}

func notHandled() Result {
	return Result{}
}

// fromValue interprets a command's return value:
//   - nil or true: success
//   - false: failure
//   - non-empty string: a message
//   - map with "error", "status" or "message": unpacked accordingly
//
// Anything else is carried through as Value.
func fromValue(command string, v any, err error) Result {
	res := Result{Handled: true, Command: command, Value: v}
	if err != nil {
		res.Err = err
		return res
	}

	switch t := v.(type) {
	case nil:
	case bool:
		if !t {
			res.Err = fmt.Errorf("%s: command reported failure", command)
		}
	case string:
		res.Message = t
	case map[string]any:
		unpackTable(&res, t)
	}
	return res
}

func unpackTable(res *Result, tbl map[string]any) {
	msg, _ := tbl["message"].(string)
	res.Message = msg

	if e, ok := tbl["error"].(string); ok && e != "" {
		res.Err = errors.New(e)
		return
	}
	switch s := tbl["status"].(type) {
	case bool:
		if !s {
			res.Err = failure(res.Command, msg)
		}
	case string:
		if s == "error" || s == "failed" {
			res.Err = failure(res.Command, msg)
		}
	}
}

func failure(command, msg string) error {
	if msg != "" {
		return errors.New(msg)
	}
	return fmt.Errorf("%s: command reported failure", command)
}
