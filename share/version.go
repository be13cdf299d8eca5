package chshare

// BuildVersion is the version reported by the agent. Release builds override it with -ldflags.
var BuildVersion = SourceVersion

var SourceVersion = "0.0.0-src"
