package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

//Config holds the service settings that are not owned by a specific connector
type Config struct {
	ServiceName string
	Port        string
	LogLevel    string

	// Operator login
	AdminEmail        string
	AdminPasswordHash string
	SessionMaxAge     int

	// MQTT heartbeat ingestion, disabled when MQTTBroker is empty
	MQTTBroker         string
	MQTTClientID       string
	MQTTUsername       string
	MQTTPassword       string
	MQTTHeartbeatTopic string

	// RabbitMQ incident notifications, disabled when RabbitMQHost is empty
	RabbitMQHost string
}

//Load reads the configuration from the environment, after merging in a .env file if there is one
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName: serviceName,
		Port:        getEnv("SERVICE_PORT", "8880"),
		LogLevel:    getEnv("DSM_LOG_LEVEL", "info"),

		AdminEmail:        getEnv("DSM_ADMIN_EMAIL", "admin@example.com"),
		AdminPasswordHash: getEnv("DSM_ADMIN_PASSWORD_HASH", ""),
		SessionMaxAge:     getEnvInt("DSM_SESSION_MAX_AGE", 60*60*24*7),

		MQTTBroker:         getEnv("DSM_MQTT_BROKER", ""),
		MQTTClientID:       getEnv("DSM_MQTT_CLIENT_ID", serviceName),
		MQTTUsername:       getEnv("DSM_MQTT_USERNAME", ""),
		MQTTPassword:       getEnv("DSM_MQTT_PASSWORD", ""),
		MQTTHeartbeatTopic: getEnv("DSM_MQTT_HEARTBEAT_TOPIC", "units/+/heartbeat"),

		RabbitMQHost: getEnv("RABBITMQ_HOST", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}
