// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package discovery advertises running master servers over mDNS and lets
// slaves browse the LAN for them without typing an address.
package discovery

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/models"
)

const (
	// ServiceType is the DNS-SD service masters register under.
	ServiceType = "_scenemirror._tcp"

	// serviceDomain is the mDNS domain, always "local." on a LAN.
	serviceDomain = "local."

	// browseTimeout bounds a single browse pass. mDNS answers arrive
	// within a couple of seconds on a healthy network.
	browseTimeout = 4 * time.Second
)

// Advertiser registers one master instance on the LAN for the lifetime of
// the server. Shutdown sends the mDNS goodbye packets.
type Advertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser returns an idle advertiser. Nothing is announced until
// Start is called.
func NewAdvertiser() *Advertiser {
	return &Advertiser{}
}

// Start announces a master listening on port. The instance name defaults
// to the hostname so operators can tell multiple masters apart.
func (a *Advertiser) Start(instance string, port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return fmt.Errorf("discovery: already advertising")
	}
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "scenemirror"
		}
		instance = host
	}

	server, err := zeroconf.Register(instance, ServiceType, serviceDomain, port,
		[]string{"txtv=1"}, nil)
	if err != nil {
		return fmt.Errorf("discovery: register %s: %w", ServiceType, err)
	}
	a.server = server
	logging.Info().
		Str("instance", instance).
		Int("port", port).
		Msg("mDNS advertisement started")
	return nil
}

// Stop withdraws the advertisement. Safe to call when not advertising.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	logging.Info().Msg("mDNS advertisement stopped")
}

// Advertising reports whether an announcement is active.
func (a *Advertiser) Advertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Browse performs one discovery pass and returns the masters currently
// announcing on the LAN, sorted by instance name. The pass ends when the
// context is cancelled or the browse timeout elapses, whichever is first.
func Browse(ctx context.Context) ([]models.DiscoveredMaster, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, browseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	var masters []models.DiscoveredMaster
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			host := ""
			if len(entry.AddrIPv4) > 0 {
				host = entry.AddrIPv4[0].String()
			} else if len(entry.AddrIPv6) > 0 {
				host = entry.AddrIPv6[0].String()
			}
			if host == "" {
				continue
			}
			masters = append(masters, models.DiscoveredMaster{
				Instance: entry.Instance,
				Host:     host,
				Port:     entry.Port,
			})
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, serviceDomain, entries); err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}
	<-ctx.Done()
	<-done

	sort.Slice(masters, func(i, j int) bool {
		if masters[i].Instance != masters[j].Instance {
			return masters[i].Instance < masters[j].Instance
		}
		return masters[i].Host < masters[j].Host
	})
	return masters, nil
}
