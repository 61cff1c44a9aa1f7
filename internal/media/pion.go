package media

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	pkglog "github.com/castrelay/castrelay/pkg/log"
)

// PionConfig configures the pion-backed engine.
type PionConfig struct {
	ICEServers []string
	UDPPortMin uint16
	UDPPortMax uint16
	Codecs     []Codec
}

type pionEngine struct {
	cfg        PionConfig
	iceServers []webrtc.ICEServer
	log        zerolog.Logger

	mu      sync.Mutex
	closed  bool
	routers map[string]*pionRouter
}

// NewPionEngine builds an Engine backed by pion/webrtc. Each router gets
// its own API instance so codec registration stays per-router.
func NewPionEngine(cfg PionConfig) (Engine, error) {
	if len(cfg.Codecs) == 0 {
		return nil, fmt.Errorf("media: no codecs configured")
	}
	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, url := range cfg.ICEServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	return &pionEngine{
		cfg:        cfg,
		iceServers: servers,
		log:        pkglog.L().With().Str("component", "media").Logger(),
		routers:    make(map[string]*pionRouter),
	}, nil
}

func (e *pionEngine) newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range e.cfg.Codecs {
		typ := webrtc.RTPCodecTypeVideo
		if c.Kind == KindAudio {
			typ = webrtc.RTPCodecTypeAudio
		}
		if err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    c.MimeType,
				ClockRate:   c.ClockRate,
				Channels:    c.Channels,
				SDPFmtpLine: c.SDPFmtpLine,
			},
			PayloadType: webrtc.PayloadType(c.PayloadType),
		}, typ); err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
	}

	i := &interceptor.Registry{}
	intervalPliFactory, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, err
	}
	i.Add(intervalPliFactory)
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	if e.cfg.UDPPortMin > 0 && e.cfg.UDPPortMax >= e.cfg.UDPPortMin {
		if err := se.SetEphemeralUDPPortRange(e.cfg.UDPPortMin, e.cfg.UDPPortMax); err != nil {
			return nil, err
		}
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	), nil
}

func (e *pionEngine) CreateRouter(ctx context.Context) (Router, error) {
	api, err := e.newAPI()
	if err != nil {
		return nil, err
	}

	r := &pionRouter{
		id:         uuid.New().String(),
		engine:     e,
		api:        api,
		codecs:     e.cfg.Codecs,
		caps:       marshalCapabilities(e.cfg.Codecs),
		transports: make(map[string]*pionTransport),
		producers:  make(map[string]*pionProducer),
	}
	r.log = e.log.With().Str(pkglog.FieldRoomID, r.id).Logger()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("media: engine closed")
	}
	e.routers[r.id] = r
	return r, nil
}

func (e *pionEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	routers := make([]*pionRouter, 0, len(e.routers))
	for _, r := range e.routers {
		routers = append(routers, r)
	}
	e.routers = make(map[string]*pionRouter)
	e.mu.Unlock()

	for _, r := range routers {
		_ = r.Close()
	}
	return nil
}

func (e *pionEngine) forget(routerID string) {
	e.mu.Lock()
	delete(e.routers, routerID)
	e.mu.Unlock()
}

type pionRouter struct {
	id     string
	engine *pionEngine
	api    *webrtc.API
	codecs []Codec
	caps   json.RawMessage
	log    zerolog.Logger

	mu         sync.Mutex
	closed     bool
	transports map[string]*pionTransport
	producers  map[string]*pionProducer
}

func (r *pionRouter) ID() string { return r.id }

func (r *pionRouter) Capabilities() json.RawMessage { return r.caps }

func (r *pionRouter) CreateTransport(ctx context.Context) (Transport, error) {
	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{
		ICEServers: r.engine.iceServers,
	})
	if err != nil {
		return nil, err
	}

	gatherDone := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gatherDone)
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	select {
	case <-gatherDone:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}

	ice := r.api.NewICETransport(gatherer)
	dtls, err := r.api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}

	t := &pionTransport{
		id:       uuid.New().String(),
		router:   r,
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
	}

	info := TransportInfo{ID: t.id}
	if info.ICEParameters, err = json.Marshal(iceParams); err != nil {
		_ = t.teardown()
		return nil, err
	}
	if info.ICECandidates, err = json.Marshal(candidates); err != nil {
		_ = t.teardown()
		return nil, err
	}
	if info.DTLSParameters, err = json.Marshal(dtlsParams); err != nil {
		_ = t.teardown()
		return nil, err
	}
	t.info = info

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = t.teardown()
		return nil, fmt.Errorf("media: router closed")
	}
	r.transports[t.id] = t
	return t, nil
}

func (r *pionRouter) CanConsume(producerID string, rtpCapabilities json.RawMessage) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return capsCompatible(r.codecs, p.kind, rtpCapabilities)
}

func (r *pionRouter) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	transports := make([]*pionTransport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.transports = make(map[string]*pionTransport)
	r.producers = make(map[string]*pionProducer)
	r.mu.Unlock()

	for _, t := range transports {
		_ = t.Close()
	}
	r.engine.forget(r.id)
	return nil
}

func (r *pionRouter) registerProducer(p *pionProducer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("media: router closed")
	}
	r.producers[p.id] = p
	return nil
}

func (r *pionRouter) forgetProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *pionRouter) producer(id string) (*pionProducer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *pionRouter) forgetTransport(id string) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
}

// connectParameters is the payload a client sends to connect a transport.
// Browsers doing full ICE include their ICE parameters and candidates
// alongside the DTLS fingerprints.
type connectParameters struct {
	Role          string                   `json:"role,omitempty"`
	Fingerprints  []webrtc.DTLSFingerprint `json:"fingerprints"`
	ICEParameters *webrtc.ICEParameters    `json:"iceParameters,omitempty"`
	ICECandidates []webrtc.ICECandidate    `json:"iceCandidates,omitempty"`
}

type pionTransport struct {
	id     string
	router *pionRouter
	info   TransportInfo

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	mu        sync.Mutex
	closed    bool
	connected bool
}

func (t *pionTransport) ID() string { return t.id }

func (t *pionTransport) Info() TransportInfo { return t.info }

func (t *pionTransport) Connect(ctx context.Context, dtlsParameters json.RawMessage) error {
	var params connectParameters
	if err := json.Unmarshal(dtlsParameters, &params); err != nil {
		return fmt.Errorf("media: parse connect parameters: %w", err)
	}
	if params.ICEParameters == nil {
		return fmt.Errorf("media: connect parameters missing iceParameters")
	}
	if len(params.Fingerprints) == 0 {
		return fmt.Errorf("media: connect parameters missing fingerprints")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("media: transport closed")
	}
	if t.connected {
		return nil
	}

	if len(params.ICECandidates) > 0 {
		if err := t.ice.SetRemoteCandidates(params.ICECandidates); err != nil {
			return err
		}
	}
	iceRole := webrtc.ICERoleControlled
	if err := t.ice.Start(nil, *params.ICEParameters, &iceRole); err != nil {
		return err
	}

	dtlsRole := webrtc.DTLSRoleAuto
	switch params.Role {
	case "client":
		dtlsRole = webrtc.DTLSRoleClient
	case "server":
		dtlsRole = webrtc.DTLSRoleServer
	}
	if err := t.dtls.Start(webrtc.DTLSParameters{
		Role:         dtlsRole,
		Fingerprints: params.Fingerprints,
	}); err != nil {
		return err
	}

	t.connected = true
	t.router.log.Debug().Str(pkglog.FieldTransportID, t.id).Msg("transport connected")
	return nil
}

// produceParameters carries the send encodings a producing client declares.
type produceParameters struct {
	Encodings []webrtc.RTPCodingParameters `json:"encodings"`
}

func (t *pionTransport) Produce(ctx context.Context, kind string, rtpParameters json.RawMessage) (Producer, error) {
	if kind != KindAudio && kind != KindVideo {
		return nil, fmt.Errorf("media: unknown media kind %q", kind)
	}
	var params produceParameters
	if err := json.Unmarshal(rtpParameters, &params); err != nil {
		return nil, fmt.Errorf("media: parse rtp parameters: %w", err)
	}
	if len(params.Encodings) == 0 {
		return nil, fmt.Errorf("media: rtp parameters missing encodings")
	}

	typ := webrtc.RTPCodecTypeVideo
	if kind == KindAudio {
		typ = webrtc.RTPCodecTypeAudio
	}
	receiver, err := t.router.api.NewRTPReceiver(typ, t.dtls)
	if err != nil {
		return nil, err
	}

	recv := webrtc.RTPReceiveParameters{
		Encodings: make([]webrtc.RTPDecodingParameters, len(params.Encodings)),
	}
	for i, enc := range params.Encodings {
		recv.Encodings[i] = webrtc.RTPDecodingParameters{RTPCodingParameters: enc}
	}
	if err := receiver.Receive(recv); err != nil {
		_ = receiver.Stop()
		return nil, err
	}

	p := &pionProducer{
		id:        uuid.New().String(),
		kind:      kind,
		router:    t.router,
		receiver:  receiver,
		consumers: make(map[string]*pionConsumer),
	}
	if err := t.router.registerProducer(p); err != nil {
		_ = receiver.Stop()
		return nil, err
	}
	go p.forward()

	t.router.log.Info().
		Str(pkglog.FieldTransportID, t.id).
		Str(pkglog.FieldProducerID, p.id).
		Str("kind", kind).
		Msg("producer created")
	return p, nil
}

func (t *pionTransport) Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage) (Consumer, error) {
	p, ok := t.router.producer(producerID)
	if !ok {
		return nil, fmt.Errorf("media: producer %s not found", producerID)
	}
	codec, ok := codecForKind(t.router.codecs, p.kind)
	if !ok {
		return nil, fmt.Errorf("media: no codec for kind %s", p.kind)
	}
	if !capsCompatible(t.router.codecs, p.kind, rtpCapabilities) {
		return nil, fmt.Errorf("media: capabilities incompatible with producer %s", producerID)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:    codec.MimeType,
		ClockRate:   codec.ClockRate,
		Channels:    codec.Channels,
		SDPFmtpLine: codec.SDPFmtpLine,
	}, p.kind, "castrelay")
	if err != nil {
		return nil, err
	}
	sender, err := t.router.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return nil, err
	}
	sendParams := sender.GetParameters()
	if err := sender.Send(sendParams); err != nil {
		_ = sender.Stop()
		return nil, err
	}
	rtpParams, err := json.Marshal(sendParams)
	if err != nil {
		_ = sender.Stop()
		return nil, err
	}

	c := &pionConsumer{
		id:         uuid.New().String(),
		producerID: producerID,
		kind:       p.kind,
		producer:   p,
		track:      track,
		sender:     sender,
		rtpParams:  rtpParams,
	}
	c.paused.Store(true)
	if err := p.addConsumer(c); err != nil {
		_ = sender.Stop()
		return nil, err
	}

	t.router.log.Info().
		Str(pkglog.FieldTransportID, t.id).
		Str(pkglog.FieldProducerID, producerID).
		Str(pkglog.FieldConsumerID, c.id).
		Msg("consumer created")
	return c, nil
}

func (t *pionTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.router.forgetTransport(t.id)
	return t.teardown()
}

func (t *pionTransport) teardown() error {
	var firstErr error
	if err := t.dtls.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := t.ice.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := t.gatherer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

type pionProducer struct {
	id       string
	kind     string
	router   *pionRouter
	receiver *webrtc.RTPReceiver

	mu        sync.Mutex
	closed    bool
	consumers map[string]*pionConsumer
}

func (p *pionProducer) ID() string { return p.id }

func (p *pionProducer) Kind() string { return p.kind }

// forward pumps RTP from the broadcaster into every unpaused consumer
// track. It exits when the receiver is stopped.
func (p *pionProducer) forward() {
	track := p.receiver.Track()
	if track == nil {
		return
	}
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		p.mu.Lock()
		targets := make([]*pionConsumer, 0, len(p.consumers))
		for _, c := range p.consumers {
			targets = append(targets, c)
		}
		p.mu.Unlock()
		for _, c := range targets {
			if c.paused.Load() {
				continue
			}
			if err := c.track.WriteRTP(pkt); err != nil {
				p.router.log.Debug().
					Str(pkglog.FieldConsumerID, c.id).
					Err(err).
					Msg("rtp write failed")
			}
		}
	}
}

func (p *pionProducer) addConsumer(c *pionConsumer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("media: producer closed")
	}
	p.consumers[c.id] = c
	return nil
}

func (p *pionProducer) removeConsumer(id string) {
	p.mu.Lock()
	delete(p.consumers, id)
	p.mu.Unlock()
}

func (p *pionProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.consumers = make(map[string]*pionConsumer)
	p.mu.Unlock()

	p.router.forgetProducer(p.id)
	return p.receiver.Stop()
}

type pionConsumer struct {
	id         string
	producerID string
	kind       string
	producer   *pionProducer
	track      *webrtc.TrackLocalStaticRTP
	sender     *webrtc.RTPSender
	rtpParams  json.RawMessage

	paused atomic.Bool
	closed atomic.Bool
}

func (c *pionConsumer) ID() string { return c.id }

func (c *pionConsumer) ProducerID() string { return c.producerID }

func (c *pionConsumer) Kind() string { return c.kind }

func (c *pionConsumer) RTPParameters() json.RawMessage { return c.rtpParams }

func (c *pionConsumer) Resume() error {
	if c.closed.Load() {
		return fmt.Errorf("media: consumer closed")
	}
	c.paused.Store(false)
	return nil
}

func (c *pionConsumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.paused.Store(true)
	c.producer.removeConsumer(c.id)
	return c.sender.Stop()
}
