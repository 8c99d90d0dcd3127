package config

import (
	sharedconfig "github.com/draftea/travel-booking/shared/config"
)

// Service holds the booking service defaults
var Service = sharedconfig.Service{
	Name:               "booking-service",
	EnvPrefix:          "BOOKING",
	Port:               "8080",
	SuccessRate:        1,
	ConsumerGroup:      "booking-service",
	DefaultSQSQueueURL: "http://localhost:4566/000000000000/booking-service-events",
}

// ReadConfig loads the booking service configuration
func ReadConfig() (*sharedconfig.Config, error) {
	return sharedconfig.ReadConfig(Service)
}
