package cfddns

import (
	"fmt"
	"strings"

	"github.com/containrrr/shoutrrr"
	"github.com/containrrr/shoutrrr/pkg/router"
	"github.com/sirupsen/logrus"
)

// ShoutrrrNotifier sends messages to every configured shoutrrr service URL.
type ShoutrrrNotifier struct {
	serviceRouter *router.ServiceRouter
	serviceNames  []string
	logger        *logrus.Logger
}

// NewShoutrrrNotifier validates the service URLs and builds a sender for them.
// Delivery errors are logged to logger and otherwise ignored.
func NewShoutrrrNotifier(addresses []string, logger *logrus.Logger) (*ShoutrrrNotifier, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("no shoutrrr addresses given")
	}
	serviceRouter, err := shoutrrr.CreateSender(addresses...)
	if err != nil {
		return nil, fmt.Errorf("error creating shoutrrr sender: %w", err)
	}
	if logger == nil {
		logger = discard
	}

	serviceNames := make([]string, len(addresses))
	for i, address := range addresses {
		serviceNames[i] = strings.Split(address, ":")[0]
	}
	return &ShoutrrrNotifier{
		serviceRouter: serviceRouter,
		serviceNames:  serviceNames,
		logger:        logger,
	}, nil
}

func (n *ShoutrrrNotifier) SetLogger(l *logrus.Logger) { n.logger = l }

// Notify implements cfddns.Notifier.
func (n *ShoutrrrNotifier) Notify(message string) {
	errs := n.serviceRouter.Send(message, nil)
	for i, err := range errs {
		if err == nil {
			continue
		}
		name := "shoutrrr"
		if i < len(n.serviceNames) {
			name = n.serviceNames[i]
		}
		n.logger.Errorf("notification via %s failed: %s", name, err)
	}
}
