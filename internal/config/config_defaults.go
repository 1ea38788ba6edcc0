package config

import (
	"time"

	"github.com/spf13/viper"
)

type operationDefaults struct {
	timeout     time.Duration
	maxRetries  int
	temperature float64
}

// Cheat sheets and outlines are structured extraction, answers are prose.
var perOperationDefaults = map[string]operationDefaults{
	OpCheatSheet: {timeout: 90 * time.Second, maxRetries: 2, temperature: 0.2},
	OpOutline:    {timeout: 90 * time.Second, maxRetries: 2, temperature: 0.3},
	OpAnswer:     {timeout: 60 * time.Second, maxRetries: 3, temperature: 0.7},
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.baseURL", "")
	v.SetDefault("ai.maxRetries", 3)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.useSystemPrompts", true)

	for op, d := range perOperationDefaults {
		prefix := "ai." + op + "."
		v.SetDefault(prefix+"provider", "gemini")
		v.SetDefault(prefix+"model", "")
		v.SetDefault(prefix+"timeout", d.timeout)
		v.SetDefault(prefix+"apiKey", "")
		v.SetDefault(prefix+"maxRetries", d.maxRetries)
		v.SetDefault(prefix+"temperature", d.temperature)
		v.SetDefault(prefix+"useSystemPrompts", true)

		v.SetDefault(prefix+"circuitBreaker.enabled", true)
		v.SetDefault(prefix+"circuitBreaker.maxRequests", 3)
		v.SetDefault(prefix+"circuitBreaker.interval", 60*time.Second)
		v.SetDefault(prefix+"circuitBreaker.timeout", 60*time.Second)
		v.SetDefault(prefix+"circuitBreaker.minRequests", 3)
		v.SetDefault(prefix+"circuitBreaker.failureThreshold", 0.6)
	}

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 120*time.Second) // AI generation is synchronous
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.maxBodyBytes", 1024*1024)

	v.SetDefault("server.tls.mode", "disabled")
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")
	v.SetDefault("server.tls.caFile", "")
	v.SetDefault("server.tls.minVersion", "1.2")
	v.SetDefault("server.tls.clientAuthPolicy", "require")
	v.SetDefault("server.tls.autoReload", false)
	v.SetDefault("server.tls.reloadDebounce", time.Second)
	v.SetDefault("server.tls.vaultPollInterval", 5*time.Minute)

	v.SetDefault("server.apiKeys", []string{})
	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 120)
	v.SetDefault("server.rateLimit.burstCapacity", 20)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)
	v.SetDefault("server.rateLimit.window", 10*time.Minute)
	v.SetDefault("server.rateLimit.aiCost", 5)

	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.defaultFormat", "json")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})
	v.SetDefault("app.maxFileSize", 1024*1024)
	v.SetDefault("app.defaultBreakpoint", "lg")
	v.SetDefault("app.defaultMode", "live")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.path", "jobcoach.db")
	v.SetDefault("storage.busyTimeout", 5*time.Second)

	v.SetDefault("widgets.overridesFile", "")
	v.SetDefault("widgets.watch", false)
	v.SetDefault("widgets.debounceDelay", 500*time.Millisecond)

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.secrets.geminiKey", "")
	v.SetDefault("vault.secrets.tlsCerts", "")

	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.serviceName", "jobcoach")
	v.SetDefault("observability.serviceVersion", "")
	v.SetDefault("observability.serviceInstance", "")
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.tracing.enabled", true)
	v.SetDefault("observability.tracing.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)

	v.SetDefault("observability.customMetrics.aiOperations.enabled", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackDuration", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackTokenUsage", true)
	v.SetDefault("observability.customMetrics.sessions.enabled", true)
	v.SetDefault("observability.customMetrics.sessions.trackLayoutDrops", true)
	v.SetDefault("observability.customMetrics.sessions.trackPayloadSize", true)
	v.SetDefault("observability.customMetrics.infrastructure.enabled", true)
	v.SetDefault("observability.customMetrics.infrastructure.trackRateLimits", true)

	v.SetDefault("observability.prometheus.enabled", false)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")

	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})

	v.SetDefault("observability.healthCheck.timeout", 5*time.Second)
}
