package config

import (
	"github.com/draftea/travel-booking/payments-service/domain"
	sharedconfig "github.com/draftea/travel-booking/shared/config"
)

// Service holds the defaults of the payment participant
var Service = sharedconfig.Service{
	Name:               domain.ServiceName,
	EnvPrefix:          "PAYMENT",
	Port:               "8084",
	SuccessRate:        domain.DefaultSuccessRate,
	ConsumerGroup:      domain.ServiceName,
	DefaultSQSQueueURL: "http://localhost:4566/000000000000/payment-events",
}

func ReadConfig() (*sharedconfig.Config, error) {
	return sharedconfig.ReadConfig(Service)
}
