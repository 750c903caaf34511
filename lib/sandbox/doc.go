// Package sandbox runs the code of EXECUTE operations.
//
// An IExecutor receives the key, the current value (nil if the key has no value) and the
// code string, and returns the new value. The process executor runs the code in a child
// process that is killed once the context expires, so a runaway computation never outlives
// its timeout.
//
// Protocol of the process executor:
//
//	argv:   <command...> <code>
//	stdin:  current value (empty if there is none)
//	env:    BKV_KEY=<key>, BKV_VALUE_AVAILABLE=0|1
//	stdout: new value
//
// A non-zero exit status fails the execution.
package sandbox
