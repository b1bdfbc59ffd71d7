package session

import (
	"context"

	"github.com/versal-debug/vdbg/internal/faults"
	"github.com/versal-debug/vdbg/internal/sdk"
)

// LinkSetup names the links and eye scans created by SetupLinks.
type LinkSetup struct {
	Links    []string `yaml:"links"`
	EyeScans []string `yaml:"eye_scans"`
}

// SetupLinks replaces any existing links with one loopback link per transceiver and
// creates an eye scan on each.
func (f *Facade) SetupLinks(ctx context.Context) (LinkSetup, error) {
	f.mu.RLock()
	sess, ibert := f.sess, f.ibert
	oldLinks, oldScans := f.links, f.eyeScans
	f.mu.RUnlock()
	if sess == nil {
		return LinkSetup{}, faults.ErrNotConnected
	}
	if ibert == nil {
		return LinkSetup{}, ErrNoIbertCore
	}

	if len(oldScans) > 0 {
		if err := sess.DeleteEyeScans(ctx, oldScans); err != nil {
			f.logTeardown(ctx, "session.setup_links", &faults.ResourceTeardownError{Resource: "eye scans", Err: err})
		}
	}
	if len(oldLinks) > 0 {
		if err := sess.DeleteLinks(ctx, oldLinks); err != nil {
			f.logTeardown(ctx, "session.setup_links", &faults.ResourceTeardownError{Resource: "IBERT links", Err: err})
		}
	}

	var tx, rx []sdk.Endpoint
	for _, group := range ibert.GTGroups() {
		for _, gt := range group.GTs {
			tx = append(tx, gt.TX)
			rx = append(rx, gt.RX)
		}
	}

	links, err := sess.CreateLinks(ctx, tx, rx)
	if err != nil {
		f.storeLinks(sess, nil, nil)
		return LinkSetup{}, faults.Device("create links", err)
	}
	scans, err := sess.CreateEyeScans(ctx, links)
	if err != nil {
		f.storeLinks(sess, links, nil)
		return LinkSetup{}, faults.Device("create eye scans", err)
	}
	f.storeLinks(sess, links, scans)

	var setup LinkSetup
	for _, l := range links {
		setup.Links = append(setup.Links, l.Name())
	}
	for _, scan := range scans {
		setup.EyeScans = append(setup.EyeScans, scan.Name())
	}
	f.logger.Info("IBERT links created", "links", len(links), "eye_scans", len(scans))
	return setup, nil
}

// EyeScans returns the scans created by the last SetupLinks.
func (f *Facade) EyeScans() []sdk.EyeScan {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]sdk.EyeScan(nil), f.eyeScans...)
}

// Links returns the current link names.
func (f *Facade) Links() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.links))
	for _, l := range f.links {
		names = append(names, l.Name())
	}
	return names
}

func (f *Facade) storeLinks(sess sdk.Session, links []sdk.Link, scans []sdk.EyeScan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess != sess {
		return
	}
	f.links = links
	f.eyeScans = scans
}
