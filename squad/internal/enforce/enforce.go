// Package enforce provides the fatal-assertion helper used at every
// precondition boundary in the squad package. Violations are programmer
// errors, not recoverable runtime conditions, so they log and panic rather
// than propagate as errors.
package enforce

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Enforce halts the calling goroutine if query is a false bool, a non-nil
// error, or a string (taken as the failure message); a query of any other
// non-nil type is logged as incorrect usage and also halts. A nil query
// is treated as "the precondition held" and is a no-op, mirroring the
// common enforce.ENFORCE(err) idiom of checking a possibly-nil error.
func Enforce(query interface{}, args ...interface{}) {
	switch t := query.(type) {
	case bool:
		if !t {
			log.Error().Msg(fmt.Sprint("ENFORCE: ", args))
			panic(fmt.Sprint(args...))
		}
	case error:
		if t != nil {
			log.Error().Err(t).Msg(fmt.Sprint("ENFORCE: ", args))
			panic(t)
		}
	case string:
		log.Error().Msg(fmt.Sprint("ENFORCE: ", t, args))
		panic(t)
	case nil:
		// A nil query means "no error", so this is a pass.
	default:
		log.Error().Msg(fmt.Sprintf("ENFORCE: incorrect usage of enforce with type: %T - %v - %v", t, t, args))
		panic(t)
	}
}
