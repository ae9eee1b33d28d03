package notify

import "github.com/streadway/amqp"

// MockAMQPConnection is a test double for AMQPConnection.
type MockAMQPConnection struct {
	MockChannel   AMQPChannel
	ChannelErr    error
	CloseErr      error
	ChannelCalled bool
	CloseCalled   bool
}

func (m *MockAMQPConnection) Channel() (AMQPChannel, error) {
	m.ChannelCalled = true
	if m.ChannelErr != nil {
		return nil, m.ChannelErr
	}
	return m.MockChannel, nil
}

func (m *MockAMQPConnection) Close() error {
	m.CloseCalled = true
	return m.CloseErr
}

// MockAMQPChannel is a test double for AMQPChannel that records every
// published message for assertion.
type MockAMQPChannel struct {
	PublishedMessages []amqp.Publishing
	PublishedKeys     []string
	LastExchange      string

	ExchangeDeclareErr error
	PublishErr         error
	CloseErr           error

	ExchangeDeclareCalled bool
	PublishCalled         bool
	CloseCalled           bool
}

func (m *MockAMQPChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	m.ExchangeDeclareCalled = true
	return m.ExchangeDeclareErr
}

func (m *MockAMQPChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	m.PublishCalled = true
	m.LastExchange = exchange
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.PublishedMessages = append(m.PublishedMessages, msg)
	m.PublishedKeys = append(m.PublishedKeys, key)
	return nil
}

func (m *MockAMQPChannel) Close() error {
	m.CloseCalled = true
	return m.CloseErr
}

// MockAMQPDialer returns a preconfigured connection instead of dialing out.
type MockAMQPDialer struct {
	Connection AMQPConnection
	DialErr    error
}

func (m *MockAMQPDialer) Dial(url string) (AMQPConnection, error) {
	if m.DialErr != nil {
		return nil, m.DialErr
	}
	return m.Connection, nil
}
