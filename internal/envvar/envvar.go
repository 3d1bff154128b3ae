package envvar

const (
	// RKBackendEnv is the environment variable used to determine the environment
	RKBackendEnv = "RKBACKEND_ENV"

	// RKBackendModelsPath overrides the model repository directory
	RKBackendModelsPath = "RKBACKEND_MODELS_PATH"

	// RKBackendHTTPPort is the environment variable used to determine the HTTP port
	RKBackendHTTPPort = "RKBACKEND_HTTP_PORT"

	// RKBackendGRPCPort is the environment variable used to determine the gRPC port
	RKBackendGRPCPort = "RKBACKEND_GRPC_PORT"

	// RKBackendLogLevel overrides the log level (debug, info, warn, error)
	RKBackendLogLevel = "RKBACKEND_LOG_LEVEL"
)
