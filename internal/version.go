package internal

// Version is the current release of this module's executables.
const Version = "0.1.0"
