package nats

import (
	"os"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const defaultURL = "nats://localhost:4222"

type Nats struct {
	Url   string
	Token string
	Conn  *nats.Conn
}

// Connect dials NATS. Empty url/token fall back to NATS_URL/NATS_TOKEN.
func Connect(name, url, token string) (*Nats, error) {
	n := &Nats{Url: url, Token: token}
	if n.Url == "" {
		n.Url = os.Getenv("NATS_URL")
	}
	if n.Token == "" {
		n.Token = os.Getenv("NATS_TOKEN")
	}
	if n.Url == "" {
		n.Url = defaultURL
	}

	conn, err := nats.Connect(n.Url, options(name, n.Token)...)
	if err != nil {
		return nil, err
	}

	n.Conn = conn

	return n, nil
}

func options(name, token string) []nats.Option {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %s", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("NATS reconnected to %s", c.ConnectedUrl())
		}),
	}

	// if token provided
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	return opts
}
