package config

// ServiceVersion is the version reported by the -version flag, the health
// endpoints and the X-Rootline-Version header. A single constant so the
// binaries and the API never disagree.
// TODO: inject at build time with -ldflags.
const ServiceVersion = "0.1.0-dev"
