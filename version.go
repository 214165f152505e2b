package pageflow

// Version is the pageflow release, overridden at build time with
// -ldflags "-X github.com/aretw0/pageflow.Version=...".
var Version = "0.4.0-dev"
