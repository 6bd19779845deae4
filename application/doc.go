// Package application provides the executable-level features shared by
// the verification bot: logging, and an abstraction for the
// configurations of any executable in this module.
package application
