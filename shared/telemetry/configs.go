package telemetry

const serviceVersion = "1.0.0"

// Predefined service configurations
var (
	BookingServiceConfig = Config{ServiceName: "booking-service", ServiceVersion: serviceVersion}
	FlightServiceConfig  = Config{ServiceName: "flight-service", ServiceVersion: serviceVersion}
	HotelServiceConfig   = Config{ServiceName: "hotel-service", ServiceVersion: serviceVersion}
	CarServiceConfig     = Config{ServiceName: "car-service", ServiceVersion: serviceVersion}
	PaymentServiceConfig = Config{ServiceName: "payments-service", ServiceVersion: serviceVersion}
)

// NewConfigForService creates a new telemetry config for a custom service
func NewConfigForService(serviceName, version, otlpEndpoint string) Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   otlpEndpoint,
	}
}

// WithOTLPEndpoint sets the OTLP endpoint for a config
func (c Config) WithOTLPEndpoint(endpoint string) Config {
	c.OTLPEndpoint = endpoint
	return c
}
