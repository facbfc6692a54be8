package internal

// Version is the client version reported in the User-Agent header.
var Version = "v0.3.0"
