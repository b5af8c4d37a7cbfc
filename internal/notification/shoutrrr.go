package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// ShoutrrrProvider sends notifications through shoutrrr service URLs
// (ntfy, telegram, smtp, ...).
type ShoutrrrProvider struct {
	name    string
	enabled bool
	urls    []string
	timeout time.Duration
	sender  *router.ServiceRouter
}

// NewShoutrrrProvider creates a provider. The sender is built lazily by
// ValidateConfig.
func NewShoutrrrProvider(name string, enabled bool, urls []string, timeout time.Duration) *ShoutrrrProvider {
	return &ShoutrrrProvider{
		name:    name,
		enabled: enabled && len(urls) > 0,
		urls:    urls,
		timeout: timeout,
	}
}

func (p *ShoutrrrProvider) Name() string {
	return p.name
}

func (p *ShoutrrrProvider) Enabled() bool {
	return p.enabled
}

// ValidateConfig parses every URL and builds the sender.
func (p *ShoutrrrProvider) ValidateConfig() error {
	if len(p.urls) == 0 {
		return errors.New("no shoutrrr urls configured")
	}
	sender, err := shoutrrr.CreateSender(p.urls...)
	if err != nil {
		return fmt.Errorf("invalid shoutrrr url: %w", err)
	}
	p.sender = sender
	return nil
}

// Send delivers n to every configured URL. The call returns when all
// services answer, the provider timeout passes, or ctx is done.
func (p *ShoutrrrProvider) Send(ctx context.Context, n *Notification) error {
	if p.sender == nil {
		if err := p.ValidateConfig(); err != nil {
			return err
		}
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	params := types.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}

	done := make(chan []error, 1)
	go func() {
		done <- p.sender.Send(n.Body, &params)
	}()

	select {
	case errs := <-done:
		return errors.Join(errs...)
	case <-ctx.Done():
		return fmt.Errorf("shoutrrr send: %w", ctx.Err())
	}
}
