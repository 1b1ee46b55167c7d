package config

import (
	"testing"
)

func TestThatLoadAppliesDefaults(t *testing.T) {
	t.Setenv("SERVICE_PORT", "")
	t.Setenv("DSM_MQTT_BROKER", "")

	cfg := Load("disaster-sound-manager")

	if cfg.Port != "8880" {
		t.Errorf("Port should default to 8880, but was %s", cfg.Port)
	}
	if cfg.MQTTBroker != "" {
		t.Errorf("MQTT should be disabled by default, but broker was %s", cfg.MQTTBroker)
	}
	if cfg.MQTTClientID != "disaster-sound-manager" {
		t.Errorf("MQTT client id should default to the service name, but was %s", cfg.MQTTClientID)
	}
}

func TestThatLoadReadsTheEnvironment(t *testing.T) {
	t.Setenv("SERVICE_PORT", "9090")
	t.Setenv("DSM_SESSION_MAX_AGE", "60")
	t.Setenv("DSM_MQTT_BROKER", "tcp://broker:1883")

	cfg := Load("dsm")

	if cfg.Port != "9090" || cfg.SessionMaxAge != 60 || cfg.MQTTBroker != "tcp://broker:1883" {
		t.Errorf("Environment was not applied: %+v", cfg)
	}
}

func TestThatUnparseableIntegersFallBack(t *testing.T) {
	t.Setenv("DSM_SESSION_MAX_AGE", "a week")

	if cfg := Load("dsm"); cfg.SessionMaxAge != 60*60*24*7 {
		t.Errorf("SessionMaxAge should fall back to a week, but was %d", cfg.SessionMaxAge)
	}
}
