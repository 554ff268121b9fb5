package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crtx-sg/iotix/internal/id"
	"github.com/crtx-sg/iotix/pkg/ierr"
	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/orchestrator"
	"golang.org/x/sync/errgroup"
)

// GroupLaunchResult is what startGroup returns immediately, before members
// finish connecting (spec §4.1: "returns immediately with {acceptedCount,
// estimatedDurationMs}").
type GroupLaunchResult struct {
	AcceptedCount       int
	EstimatedDurationMs int64
}

// GroupDropoutResult is what the dropout endpoint returns (spec §6).
type GroupDropoutResult struct {
	AffectedCount       int
	EstimatedDurationMs int64
}

// CreateGroup allocates count devices from modelID under a new group (spec
// §4.1 createGroup). idPattern interpolates "{index}" and "{modelId}" for
// each member, defaulting to "{modelId}-{index}" when unset (spec §3
// Group). Members already created before a failure are rolled back.
func (m *Manager) CreateGroup(modelID, groupID, idPattern string, count int) (*model.Group, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: count must be >= 1", ierr.ErrValidation)
	}
	if count > m.maxGroupSize {
		return nil, fmt.Errorf("%w: count %d exceeds the configured maximum of %d", ierr.ErrValidation, count, m.maxGroupSize)
	}
	if _, err := m.GetModel(modelID); err != nil {
		return nil, err
	}
	if groupID == "" {
		groupID = modelID + "-group-" + id.Short()
	}
	if idPattern == "" {
		idPattern = "{modelId}-{index}"
	}

	m.mu.Lock()
	if _, exists := m.groups[groupID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: group %q", ierr.ErrAlreadyExists, groupID)
	}
	entry := &groupEntry{group: model.Group{
		ID:            groupID,
		ModelID:       modelID,
		ExpectedCount: count,
		IDPattern:     idPattern,
		Members:       make(map[string]bool, count),
	}}
	m.groups[groupID] = entry
	m.mu.Unlock()

	members := make([]string, 0, count)
	for i := 0; i < count; i++ {
		deviceID := interpolateIDPattern(idPattern, modelID, i)
		d, err := m.CreateDevice(modelID, deviceID, groupID)
		if err != nil {
			m.rollbackMembers(members)
			m.mu.Lock()
			delete(m.groups, groupID)
			m.mu.Unlock()
			return nil, fmt.Errorf("catalog: create group %q member %d: %w", groupID, i, err)
		}
		members = append(members, d.ID)
	}

	entry.mu.Lock()
	for _, devID := range members {
		entry.group.Members[devID] = true
	}
	g := entry.group
	entry.mu.Unlock()

	m.totalGroups.Add(1)
	return &g, nil
}

// rollbackMembers deletes every partially created member concurrently when
// createGroup fails partway through (spec §4.1 createGroup: "members already
// created before the failure are rolled back").
func (m *Manager) rollbackMembers(members []string) {
	var g errgroup.Group
	for _, deviceID := range members {
		deviceID := deviceID
		g.Go(func() error {
			return m.DeleteDevice(deviceID)
		})
	}
	if err := g.Wait(); err != nil {
		m.log.Warn("catalog: group rollback failed to delete a member", "error", err)
	}
}

// GetGroup returns a snapshot of one group.
func (m *Manager) GetGroup(groupID string) (*model.Group, error) {
	entry, err := m.lookupGroup(groupID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	g := entry.group
	return &g, nil
}

// ListGroups returns every group.
func (m *Manager) ListGroups() []*model.Group {
	m.mu.RLock()
	entries := make([]*groupEntry, 0, len(m.groups))
	for _, e := range m.groups {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*model.Group, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		g := e.group
		e.mu.Unlock()
		out = append(out, &g)
	}
	return out
}

func (m *Manager) lookupGroup(groupID string) (*groupEntry, error) {
	m.mu.RLock()
	entry, ok := m.groups[groupID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: group %q", ierr.ErrNotFound, groupID)
	}
	return entry, nil
}

// StartGroup launches every member on its own goroutine, staggered per cfg
// (spec §4.1 startGroup / §5: "members are ordered ascending by deviceId
// ... to give the orchestration deterministic tie-breaks"). It returns as
// soon as offsets are computed; the launch itself proceeds in the
// background and can be cut short by StopGroup or DeleteGroup.
func (m *Manager) StartGroup(groupID string, cfg orchestrator.LaunchConfig) (GroupLaunchResult, error) {
	entry, err := m.lookupGroup(groupID)
	if err != nil {
		return GroupLaunchResult{}, err
	}

	entry.mu.Lock()
	ids := orchestrator.SortAscending(entry.group.MemberIDs())
	entry.mu.Unlock()

	offsets := orchestrator.LaunchOffsets(len(ids), cfg)
	estimated := orchestrator.EstimatedDuration(offsets)

	ctx, cancel := context.WithCancel(context.Background())
	entry.mu.Lock()
	if entry.cancel != nil {
		entry.cancel()
	}
	entry.cancel = cancel
	entry.mu.Unlock()

	go m.runLaunch(ctx, ids, offsets)

	return GroupLaunchResult{
		AcceptedCount:       len(ids),
		EstimatedDurationMs: estimated.Milliseconds(),
	}, nil
}

func (m *Manager) runLaunch(ctx context.Context, ids []string, offsets []time.Duration) {
	var g errgroup.Group
	for i, deviceID := range ids {
		deviceID, offset := deviceID, offsets[i]
		g.Go(func() error {
			timer := time.NewTimer(offset)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
			return m.StartDevice(deviceID)
		})
	}
	if err := g.Wait(); err != nil {
		m.log.Warn("catalog: group launch had at least one failed start", "error", err)
	}
}

// StopGroup cancels any in-flight launch and stops every member, ascending
// by deviceId (spec §4.1 stopGroup).
func (m *Manager) StopGroup(groupID string) error {
	entry, err := m.lookupGroup(groupID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	if entry.cancel != nil {
		entry.cancel()
		entry.cancel = nil
	}
	ids := orchestrator.SortAscending(entry.group.MemberIDs())
	entry.mu.Unlock()

	for _, deviceID := range ids {
		if err := m.StopDevice(deviceID); err != nil {
			m.log.Warn("catalog: group stop failed for device", "deviceId", deviceID, "error", err)
		}
	}
	return nil
}

// DeleteGroup stops and deletes every member, then removes the group.
func (m *Manager) DeleteGroup(groupID string) error {
	if err := m.StopGroup(groupID); err != nil {
		return err
	}
	entry, err := m.lookupGroup(groupID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	ids := entry.group.MemberIDs()
	entry.mu.Unlock()

	for _, deviceID := range ids {
		_ = m.DeleteDevice(deviceID)
	}

	m.mu.Lock()
	delete(m.groups, groupID)
	m.mu.Unlock()
	m.totalGroups.Add(-1)
	return nil
}

// DropoutGroup disconnects a subset of a group's running simulated members
// per cfg, reconnecting them afterward when cfg.Reconnect is set (spec
// §4.1 dropoutGroup). Proxy devices are never dropout targets: they are
// driven by an external source, not the launch/dropout orchestration.
func (m *Manager) DropoutGroup(groupID string, cfg orchestrator.DropoutConfig) (GroupDropoutResult, error) {
	entry, err := m.lookupGroup(groupID)
	if err != nil {
		return GroupDropoutResult{}, err
	}

	entry.mu.Lock()
	memberIDs := entry.group.MemberIDs()
	entry.mu.Unlock()

	running := make([]string, 0, len(memberIDs))
	for _, devID := range memberIDs {
		d, err := m.GetDevice(devID)
		if err != nil {
			continue
		}
		if d.IsProxy() {
			continue
		}
		if d.Status == model.StatusRunning || d.Status == model.StatusReconnecting {
			running = append(running, devID)
		}
	}

	rng := orchestrator.NewDropoutRNG(groupID, time.Now())
	targets := orchestrator.SelectTargets(running, cfg, rng)
	offsets := orchestrator.Offsets(len(targets), cfg, rng)

	go m.runDropout(targets, offsets, cfg)

	return GroupDropoutResult{
		AffectedCount:       len(targets),
		EstimatedDurationMs: orchestrator.EstimatedDuration(offsets).Milliseconds(),
	}, nil
}

func (m *Manager) runDropout(targets []string, offsets []time.Duration, cfg orchestrator.DropoutConfig) {
	var g errgroup.Group
	for i, deviceID := range targets {
		deviceID, offset := deviceID, offsets[i]
		g.Go(func() error {
			time.Sleep(offset)
			if err := m.StopDevice(deviceID); err != nil {
				return err
			}
			if !cfg.Reconnect {
				return nil
			}
			time.Sleep(time.Duration(cfg.ReconnectDelayMs) * time.Millisecond)
			m.reconnectWithBackoff(deviceID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.log.Warn("catalog: dropout failed to stop a device", "error", err)
	}
}

// reconnectWithBackoff retries StartDevice with exponential backoff capped
// at 30s (spec §4.1 dropout "reconnect"). StartDevice itself is
// asynchronous (spec §7: accepted immediately), so each attempt is judged
// by polling the device's reflected status rather than StartDevice's own
// return value.
func (m *Manager) reconnectWithBackoff(deviceID string) {
	delay := 1 * time.Second
	const maxDelay = 30 * time.Second
	for attempt := 0; attempt < 6; attempt++ {
		if err := m.StartDevice(deviceID); err != nil {
			return
		}
		if m.awaitRunning(deviceID, delay) {
			return
		}
		time.Sleep(delay)
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// awaitRunning polls deviceID's status for up to timeout, returning true as
// soon as it reaches RUNNING.
func (m *Manager) awaitRunning(deviceID string, timeout time.Duration) bool {
	const pollInterval = 50 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		dev, err := m.GetDevice(deviceID)
		if err != nil {
			return false
		}
		if dev.Status == model.StatusRunning {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// interpolateIDPattern resolves a group's idPattern for member ordinal i
// (spec §3 Group: "sensor-{index}", default "{modelId}-{index}").
func interpolateIDPattern(pattern, modelID string, ordinal int) string {
	replacer := strings.NewReplacer(
		"{index}", strconv.Itoa(ordinal),
		"{modelId}", modelID,
	)
	return replacer.Replace(pattern)
}
