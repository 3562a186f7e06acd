// Package rtc is the agent's media call: a pion PeerConnection published to a
// WHIP endpoint. The media plane itself is not handled here.
package rtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/domain"
	"github.com/dkeye/Hearing/internal/session"
)

const defaultExchangeTimeout = 15 * time.Second

type Options struct {
	WHIPURL         string
	Token           string
	ICEServers      []string
	ExchangeTimeout time.Duration
	UserAgent       string
}

// WebRTCConfig builds the PeerConnection configuration; no servers means
// host candidates only.
func WebRTCConfig(servers []string) webrtc.Configuration {
	if len(servers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: servers}},
	}
}

// Call implements session.CallMedia. Each Dial builds a new PeerConnection;
// state changes of a replaced connection are ignored.
type Call struct {
	opts   Options
	signal func(session.CallSignal)
	client *http.Client

	mu          sync.Mutex
	generation  uint64
	pc          *webrtc.PeerConnection
	video       *webrtc.TrackLocalStaticSample
	videoSender *webrtc.RTPSender
	resource    string
	muted       bool
}

func NewCall(opts Options, signal func(session.CallSignal)) *Call {
	if opts.ExchangeTimeout <= 0 {
		opts.ExchangeTimeout = defaultExchangeTimeout
	}
	return &Call{
		opts:   opts,
		signal: signal,
		client: &http.Client{Timeout: opts.ExchangeTimeout},
	}
}

// Dial starts a connection attempt and returns once the PeerConnection
// exists; the offer/answer exchange continues in the background.
func (c *Call) Dial() error {
	c.mu.Lock()
	c.closeLocked()
	c.generation++
	gen := c.generation

	pc, err := webrtc.NewPeerConnection(WebRTCConfig(c.opts.ICEServers))
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("new peer connection: %w", err)
	}
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "hearing")
	if err != nil {
		_ = pc.Close()
		c.mu.Unlock()
		return err
	}
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "hearing")
	if err != nil {
		_ = pc.Close()
		c.mu.Unlock()
		return err
	}
	if _, err := pc.AddTrack(audio); err != nil {
		_ = pc.Close()
		c.mu.Unlock()
		return fmt.Errorf("add audio: %w", err)
	}
	sender, err := pc.AddTrack(video)
	if err != nil {
		_ = pc.Close()
		c.mu.Unlock()
		return fmt.Errorf("add video: %w", err)
	}
	if c.muted {
		if err := sender.ReplaceTrack(nil); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("mute on dial")
		}
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Uint64("generation", gen).Str("peer_connection_state", s.String()).Msg("Peer state")
		if sig, ok := stateSignal(s); ok {
			c.emit(gen, sig)
		}
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "rtc").Uint64("generation", gen).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc = pc
	c.video = video
	c.videoSender = sender
	c.mu.Unlock()

	go c.exchange(gen, pc)
	return nil
}

func stateSignal(s webrtc.PeerConnectionState) (session.CallSignal, bool) {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return session.CallSignal{State: session.CallSetup}, true
	case webrtc.PeerConnectionStateConnected:
		return session.CallSignal{State: session.CallConnected}, true
	case webrtc.PeerConnectionStateFailed:
		return session.CallSignal{State: session.CallError, Reason: "ice connection failed"}, true
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
		return session.CallSignal{State: session.CallDisconnected}, true
	}
	return session.CallSignal{}, false
}

func (c *Call) emit(gen uint64, sig session.CallSignal) {
	c.mu.Lock()
	current := gen == c.generation
	c.mu.Unlock()
	if current && c.signal != nil {
		c.signal(sig)
	}
}

// exchange performs the WHIP offer/answer: POST the complete offer as
// application/sdp and apply the answer.
func (c *Call) exchange(gen uint64, pc *webrtc.PeerConnection) {
	if err := c.negotiate(gen, pc); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Uint64("generation", gen).Msg("whip exchange failed")
		c.emit(gen, session.CallSignal{State: session.CallError, Reason: err.Error()})
	}
}

func (c *Call) negotiate(gen uint64, pc *webrtc.PeerConnection) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("ice gathering: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ExchangeTimeout)
	defer cancel()
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return errors.New("ice gathering timed out")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.WHIPURL, bytes.NewReader([]byte(pc.LocalDescription().SDP)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/sdp")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("whip post: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whip post: status %d", resp.StatusCode)
	}
	answer, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("whip answer: %w", err)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	c.resource = c.resolveLocation(resp.Header.Get("Location"))
	c.mu.Unlock()

	return pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(answer)})
}

func (c *Call) resolveLocation(loc string) string {
	if loc == "" {
		return ""
	}
	base, err := url.Parse(c.opts.WHIPURL)
	if err != nil {
		return loc
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return loc
	}
	return base.ResolveReference(ref).String()
}

// Disconnect closes the PeerConnection and deletes the WHIP resource.
// No state signal follows.
func (c *Call) Disconnect() {
	c.mu.Lock()
	c.generation++
	resource := c.resource
	c.closeLocked()
	c.mu.Unlock()

	if resource == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ExchangeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resource, nil)
	if err != nil {
		return
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("whip delete")
		return
	}
	_ = resp.Body.Close()
}

func (c *Call) closeLocked() {
	if c.pc == nil {
		return
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Msg("closed")
	}
	c.pc = nil
	c.video = nil
	c.videoSender = nil
	c.resource = ""
}

// SetVideoMuted swaps the outgoing video track out or back in.
func (c *Call) SetVideoMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	if c.videoSender == nil {
		return nil
	}
	var track webrtc.TrackLocal
	if !muted {
		track = c.video
	}
	if err := c.videoSender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("replace video track: %w", err)
	}
	return nil
}

func (c *Call) Stats() domain.HeartbeatMetrics {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return domain.HeartbeatMetrics{UserAgent: c.opts.UserAgent}
	}
	m := metricsFrom(pc.GetStats())
	m.UserAgent = c.opts.UserAgent
	return m
}

func metricsFrom(report webrtc.StatsReport) domain.HeartbeatMetrics {
	var m domain.HeartbeatMetrics
	for _, s := range report {
		switch st := s.(type) {
		case webrtc.OutboundRTPStreamStats:
			m.OutgoingPacketsSent += uint64(st.PacketsSent)
			m.OutgoingBytesSent += st.BytesSent
		case webrtc.InboundRTPStreamStats:
			m.IncomingPacketsRecv += uint64(st.PacketsReceived)
			m.IncomingPacketsLost += int64(st.PacketsLost)
			if st.Jitter > m.IncomingJitter {
				m.IncomingJitter = st.Jitter
			}
		case webrtc.ICECandidatePairStats:
			if st.Nominated {
				m.RoundTripTimeSeconds = st.CurrentRoundTripTime
			}
		}
	}
	return m
}
