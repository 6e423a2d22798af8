package enforce

import (
	"github.com/rahsheen/rocketjob/logger"
)

// ENFORCE panics when query is a false bool or a non-nil error. Used
// for startup conditions that must hold (listen sockets, storage open).
func ENFORCE(query interface{}, args ...interface{}) {
	switch t := query.(type) {
	case bool:
		if !t {
			logger.Printf("enforce", "ENFORCE: %v", args)
			panic(0)
		}
	case error:
		if t != nil {
			logger.Printf("enforce", "ENFORCE: %v", args)
			panic(t)
		}
	}
}
