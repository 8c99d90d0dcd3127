package config

import (
	"fmt"

	"github.com/draftea/travel-booking/reservation-service/domain"
	sharedconfig "github.com/draftea/travel-booking/shared/config"
	"github.com/draftea/travel-booking/shared/events"
)

var ports = map[events.Step]string{
	events.StepFlight: "8081",
	events.StepHotel:  "8082",
	events.StepCar:    "8083",
}

// ServiceFor returns the defaults of the participant serving step
func ServiceFor(step events.Step) (sharedconfig.Service, error) {
	port, ok := ports[step]
	if !ok {
		return sharedconfig.Service{}, fmt.Errorf("%s is not a reservation step", step)
	}

	name := domain.ServiceName(step)
	return sharedconfig.Service{
		Name:               name,
		EnvPrefix:          string(step),
		Port:               port,
		SuccessRate:        domain.DefaultSuccessRate,
		ConsumerGroup:      name,
		DefaultSQSQueueURL: "http://localhost:4566/000000000000/" + name + "-events",
	}, nil
}

// ReadConfig loads the configuration of the participant serving step
func ReadConfig(step events.Step) (*sharedconfig.Config, error) {
	service, err := ServiceFor(step)
	if err != nil {
		return nil, err
	}
	return sharedconfig.ReadConfig(service)
}
