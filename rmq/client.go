package rmq

import (
	"fmt"
	"net"
	"net/url"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"text2phenotype.com/postag/logger"
)

type Config struct {
	Host                    string `envconfig:"POSTAG_RMQ_HOST" required:"true"`
	Port                    string `envconfig:"POSTAG_RMQ_PORT" required:"true"`
	Username                string `envconfig:"POSTAG_RMQ_USERNAME" required:"true"`
	Password                string `envconfig:"POSTAG_RMQ_PASSWORD" required:"true"`
	Exchange                string `envconfig:"POSTAG_RMQ_DEFAULT_EXCHANGE" default:"text2phenotype-default-exchange"`
	MaxParallelRequestCount int    `envconfig:"POSTAG_MQ_MAX_PARALLEL_REQUESTS" default:"5"`
	TaskQueue               string `envconfig:"POSTAG_TASK_QUEUE" required:"true"`
	SequencerTaskQueue      string `envconfig:"POSTAG_SEQUENCER_TASK_QUEUE" required:"true"`
}

// Client consumes tagging tasks on one connection and answers the sequencer
// on another.
type Client struct {
	Deliveries     <-chan amqp.Delivery
	ReqChanErrors  <-chan *amqp.Error
	RespChanErrors <-chan *amqp.Error
	config         Config
	reqConn        *amqp.Connection
	respConn       *amqp.Connection
	respChannel    *amqp.Channel
	rmqLogger      *zerolog.Logger
}

func ReadEnvironment() (Config, error) {
	var config Config
	err := envconfig.Process("", &config)
	return config, err
}

func NewClient() (*Client, error) {
	rmqLogger := logger.NewLogger("RMQ client")
	config, err := ReadEnvironment()
	if err != nil {
		rmqLogger.Error().Err(err).Msg("Could not read env config")
		return nil, err
	}

	amqpURL := getURL(config)
	respConn, respChannel, err := setup(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed connection: %w", err)
	}
	reqConn, reqChannel, err := setup(amqpURL)
	if err != nil {
		_ = respConn.Close()
		return nil, fmt.Errorf("failed connection: %w", err)
	}
	closeAll := func() {
		_ = reqConn.Close()
		_ = respConn.Close()
	}

	q, err := reqChannel.QueueDeclarePassive(
		config.TaskQueue, // name
		true,             // durable
		false,            // delete when unused
		false,            // exclusive
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		closeAll()
		return nil, err
	}
	if err := reqChannel.QueueBind(
		config.TaskQueue,
		config.TaskQueue,
		config.Exchange,
		false,
		nil); err != nil {
		closeAll()
		return nil, err
	}
	if err := reqChannel.Qos(config.MaxParallelRequestCount, 0, false); err != nil {
		closeAll()
		return nil, fmt.Errorf("qos: %w", err)
	}

	deliveries, err := reqChannel.Consume(
		q.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("consume deliveries: %w", err)
	}
	rmqLogger.Info().
		Str("queue", q.Name).
		Int("prefetch", config.MaxParallelRequestCount).
		Msg("Consuming tagging tasks")

	return &Client{
		Deliveries:     deliveries,
		ReqChanErrors:  reqChannel.NotifyClose(make(chan *amqp.Error)),
		RespChanErrors: respChannel.NotifyClose(make(chan *amqp.Error)),
		config:         config,
		reqConn:        reqConn,
		respConn:       respConn,
		respChannel:    respChannel,
		rmqLogger:      &rmqLogger,
	}, nil
}

func (c *Client) SendMessageToSequencer(msg amqp.Publishing) error {
	return c.respChannel.Publish(
		c.config.Exchange,
		c.config.SequencerTaskQueue,
		false,
		false,
		msg)
}

func (c *Client) Close() {
	_ = c.reqConn.Close()
	_ = c.respConn.Close()
}

func getURL(config Config) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(config.Username, config.Password),
		Host:   net.JoinHostPort(config.Host, config.Port),
	}
	return u.String()
}

func setup(amqpURL string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}
