// internal/comm/lovenseconnect/scanner.go
package lovenseconnect

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"haptic-bridge/internal/comm"
	"haptic-bridge/internal/config"
	"haptic-bridge/internal/utils"
	"haptic-bridge/pkg/hardware"
)

// ManagerName is the name of the Lovense Connect communication manager
const ManagerName = "LovenseConnectServiceCommunicationManager"

// Scanner polls the Lovense Connect toy list and announces newly linked toys
type Scanner struct {
	cfg      config.LovenseConnectConfig
	client   *http.Client
	scheme   string
	events   comm.EventSender
	presence *comm.PresenceTracker
	logger   *utils.ManagerLogger
}

// NewBuilder creates a builder for the Lovense Connect manager
func NewBuilder(cfg config.LovenseConnectConfig, interval time.Duration, logger *zap.Logger) comm.Builder {
	return comm.BuilderFunc(func(events comm.EventSender) comm.CommunicationManager {
		return comm.NewTimedRetryManager(NewScanner(cfg, events, logger), events, interval, logger)
	})
}

// NewScanner creates a new Lovense Connect scanner
func NewScanner(cfg config.LovenseConnectConfig, events comm.EventSender, logger *zap.Logger) *Scanner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Scanner{
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		scheme:   "https",
		events:   events,
		presence: comm.NewPresenceTracker(),
		logger:   utils.NewManagerLogger(logger, ManagerName),
	}
}

func (s *Scanner) Name() string  { return ManagerName }
func (s *Scanner) CanScan() bool { return true }

// Scan performs one poll of the toy list
func (s *Scanner) Scan(ctx context.Context) error {
	start := time.Now()

	toys, err := fetchToys(ctx, s.client, s.cfg.URL, s.scheme)
	if err != nil {
		err = hardware.NewSpecificError(hardware.KindLovenseConnect, err)
		s.logger.LogScanPass(time.Since(start), 0, err)
		return err
	}

	byID := make(map[string]remoteToy, len(toys))
	ids := make([]string, 0, len(toys))
	for _, t := range toys {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	added := s.presence.Update(ids)
	err = s.presence.Announce(ctx, s.events, added, func(id string) hardware.DeviceFound {
		t := byID[id]
		s.logger.LogDeviceFound(t.Name, t.ID)
		return hardware.DeviceFound{
			Name:      t.Name,
			Address:   t.ID,
			Connector: hardware.Once(hardware.Releasing(
				&toyConnector{toy: t, client: s.client, logger: s.logger.Logger},
				s.release(t.ID),
			)),
		}
	})
	if err != nil {
		return err
	}

	s.logger.LogScanPass(time.Since(start), len(added), nil)
	return nil
}

// release lets the next pass announce addr again once its session is over
func (s *Scanner) release(addr string) func() {
	return func() { s.presence.Forget(addr) }
}
