package config

const (
	defaultStateDir        = "~/.local/share/postforge"
	defaultLogDir          = "~/.local/share/postforge/logs"
	defaultAPIBind         = "127.0.0.1:7641"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultResearchBaseURL = "https://api.generative.example/v1/research"
	defaultImageBaseURL    = "https://api.generative.example/v1/images"
	defaultVideoBaseURL    = "https://api.generative.example/v1/videos"
	defaultServiceTimeout  = 60

	// Observed upstream budgets: text 30/min, image 5/min, video 3/min.
	defaultTextPerMinute  = 30
	defaultImagePerMinute = 5
	defaultVideoPerMinute = 3

	defaultMaxRetries       = 3
	defaultRetryBaseDelayMS = 1000

	defaultMinConfidence = 20
	defaultSeedCount     = 10
	defaultStagePacingMS = 800

	defaultImageRetries       = 3
	defaultResolverRetryDelay = 500
	defaultMaxConcurrent      = 3
	defaultPlaceholderBaseURL = "https://picsum.photos/seed"

	defaultCacheTTLHours = 24
	defaultSweepMinutes  = 60
	defaultPollSeconds   = 10
	defaultNotifyTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Research: Service{
			BaseURL:        defaultResearchBaseURL,
			TimeoutSeconds: defaultServiceTimeout,
		},
		Image: Service{
			BaseURL:        defaultImageBaseURL,
			TimeoutSeconds: defaultServiceTimeout,
		},
		Video: Service{
			BaseURL:        defaultVideoBaseURL,
			TimeoutSeconds: defaultServiceTimeout,
		},
		Governor: Governor{
			Text:             ClassLimits{PerMinute: defaultTextPerMinute, Concurrency: 4, MinSpacingMS: 250},
			Image:            ClassLimits{PerMinute: defaultImagePerMinute, Concurrency: 2, MinSpacingMS: 2000},
			Video:            ClassLimits{PerMinute: defaultVideoPerMinute, Concurrency: 1, MinSpacingMS: 5000},
			MaxRetries:       defaultMaxRetries,
			RetryBaseDelayMS: defaultRetryBaseDelayMS,
		},
		Analysis: Analysis{
			MinConfidence: defaultMinConfidence,
			SeedCount:     defaultSeedCount,
			StagePacingMS: defaultStagePacingMS,
		},
		Resolver: Resolver{
			ImageRetries:       defaultImageRetries,
			RetryDelayMS:       defaultResolverRetryDelay,
			MaxConcurrent:      defaultMaxConcurrent,
			PlaceholderBaseURL: defaultPlaceholderBaseURL,
		},
		Cache: Cache{
			TTLHours:             defaultCacheTTLHours,
			SweepIntervalMinutes: defaultSweepMinutes,
		},
		VideoPoll: VideoPoll{
			IntervalSeconds: defaultPollSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
