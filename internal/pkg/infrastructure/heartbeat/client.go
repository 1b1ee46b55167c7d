package heartbeat

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
)

//ClientConfig holds the MQTT connection settings
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

//Client keeps an MQTT subscription that feeds a Listener
type Client struct {
	client   mqtt.Client
	listener *Listener
	topic    string
	log      logging.Logger
}

//NewClient connects to the broker. The heartbeat subscription is renewed on every reconnect.
func NewClient(cfg ClientConfig, listener *Listener, log logging.Logger) (*Client, error) {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	c := &Client{listener: listener, topic: topic, log: log}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	})

	c.client = mqtt.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Infof("Connected to MQTT broker %s", cfg.Broker)

	return c, nil
}

func (c *Client) onConnect(client mqtt.Client) {
	token := client.Subscribe(c.topic, 1, c.handleMessage)
	if token.Wait() && token.Error() != nil {
		c.log.Errorf("Failed to subscribe to %s: %s", c.topic, token.Error().Error())
		return
	}

	c.log.Infof("Subscribed to heartbeat topic %s", c.topic)
}

func (c *Client) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := c.listener.Handle(msg.Topic(), msg.Payload()); err != nil {
		c.log.Warnf("%s", err.Error())
	}
}

//Close disconnects from the broker
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.log.Info("MQTT client disconnected")
}
