package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/voxbridge/realtime-relay/internal/audio"
	"github.com/voxbridge/realtime-relay/internal/logger"
)

// UpstreamSampleRate is the PCM sample rate of the realtime API: 24kHz
// 16-bit mono on both the input buffer and synthesized deltas.
const UpstreamSampleRate = 24000

// Binary ingest chunking. Raw PCM frames from clients are coalesced into
// append events between these bounds so tiny frames don't become one event
// each.
const (
	maxIngestChunkMs = 1000
	minIngestChunkMs = 50

	upstreamBytesPerSecond = UpstreamSampleRate * audio.BytesPerSample
	maxIngestChunk         = maxIngestChunkMs * upstreamBytesPerSecond / 1000
	minIngestChunk         = minIngestChunkMs * upstreamBytesPerSecond / 1000

	// A short remainder sitting in the buffer this long is sent as-is.
	ingestFlushAfter = 500 * time.Millisecond
)

// UpstreamDialer establishes the outbound WebSocket. Satisfied by
// *websocket.Dialer; injected in tests.
type UpstreamDialer interface {
	Dial(urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Options carries the per-connection settings of the relay.
type Options struct {
	UpstreamURL      string
	Model            string
	APIKey           string
	IngestSampleRate int
}

// Conn pairs one client WebSocket with one upstream WebSocket for the
// lifetime of a session.
type Conn struct {
	ID string

	client   *websocket.Conn
	upstream *websocket.Conn
	dialer   UpstreamDialer
	opts     Options
	session  *Session
	log      *logger.Logger

	clientMu   sync.Mutex
	upstreamMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	ingestMu   sync.Mutex
	ingestBuf  []byte
	lastIngest time.Time
}

// NewConn creates a connection pair record. A blank id gets a generated
// ULID. The upstream socket is not dialed until ConnectUpstream.
func NewConn(clientWS *websocket.Conn, id string, dialer UpstreamDialer, opts Options, store *Store, log *logger.Logger) *Conn {
	if id == "" {
		id = ulid.Make().String()
	}
	return &Conn{
		ID:         id,
		client:     clientWS,
		dialer:     dialer,
		opts:       opts,
		session:    store.GetOrCreate(id),
		log:        log.WithSession(id),
		done:       make(chan struct{}),
		ingestBuf:  make([]byte, 0, maxIngestChunk*2),
		lastIngest: time.Now(),
	}
}

// ConnectUpstream dials the realtime API and starts the upstream pump.
func (c *Conn) ConnectUpstream() error {
	u, err := url.Parse(c.opts.UpstreamURL)
	if err != nil {
		return fmt.Errorf("failed to parse upstream URL: %w", err)
	}
	q := u.Query()
	if c.opts.Model != "" {
		q.Set("model", c.opts.Model)
	}
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.opts.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	upstream, _, err := c.dialer.Dial(u.String(), headers)
	if err != nil {
		return fmt.Errorf("failed to connect upstream: %w", err)
	}
	c.upstream = upstream
	c.log.Info().Str("url", u.Redacted()).Msg("connected upstream")

	go c.pumpUpstream()
	return nil
}

// PumpClient reads frames from the client until the socket fails: text
// frames are relayed verbatim, binary frames go through the ingest path.
// Blocks; tears down the pair on return.
func (c *Conn) PumpClient() {
	defer c.Close()

	for {
		messageType, data, err := c.client.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("client read failed")
			} else {
				c.log.Info().Msg("client disconnected")
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			if eventType, ok := PeekType(data); ok {
				c.log.Debug().Str("event", eventType).Msg("client event")
			}
			if err := c.RelayText(data); err != nil {
				c.log.Error().Err(err).Msg("upstream write failed")
				return
			}
		case websocket.BinaryMessage:
			if err := c.IngestAudio(data); err != nil {
				c.log.Error().Err(err).Msg("audio ingest failed")
				return
			}
		default:
			c.log.Debug().Int("message_type", messageType).Msg("ignoring client frame")
		}
	}
}

// RelayText forwards one client text frame to the upstream, byte-for-byte.
func (c *Conn) RelayText(data []byte) error {
	return c.writeUpstream(websocket.TextMessage, data)
}

// IngestAudio buffers a raw 16-bit PCM binary frame, resamples it to the
// upstream rate when needed, and emits input_audio_buffer.append events in
// duration-bounded chunks.
func (c *Conn) IngestAudio(data []byte) error {
	if c.upstream == nil {
		return fmt.Errorf("upstream connection not established")
	}

	if c.opts.IngestSampleRate != UpstreamSampleRate {
		resampled, err := audio.ResamplePCM16(data, c.opts.IngestSampleRate, UpstreamSampleRate)
		if err != nil {
			return fmt.Errorf("failed to resample ingest audio: %w", err)
		}
		data = resampled
	}

	c.ingestMu.Lock()
	defer c.ingestMu.Unlock()

	c.ingestBuf = append(c.ingestBuf, data...)

	for len(c.ingestBuf) >= minIngestChunk {
		chunkSize := maxIngestChunk
		if len(c.ingestBuf) < chunkSize {
			chunkSize = len(c.ingestBuf)
		}
		// Never split a 16-bit sample.
		chunkSize = (chunkSize / audio.BytesPerSample) * audio.BytesPerSample

		if err := c.sendAppend(c.ingestBuf[:chunkSize]); err != nil {
			return err
		}
		c.ingestBuf = c.ingestBuf[chunkSize:]
	}

	// A sub-minimum remainder that has been waiting too long goes out
	// as-is rather than sitting in the buffer indefinitely.
	if len(c.ingestBuf) > 0 && time.Since(c.lastIngest) > ingestFlushAfter {
		remainder := (len(c.ingestBuf) / audio.BytesPerSample) * audio.BytesPerSample
		if remainder > 0 {
			if err := c.sendAppend(c.ingestBuf[:remainder]); err != nil {
				return err
			}
			c.ingestBuf = c.ingestBuf[remainder:]
		}
	}
	return nil
}

// sendAppend wraps one PCM chunk as an append event and writes it upstream.
// Caller holds ingestMu.
func (c *Conn) sendAppend(chunk []byte) error {
	frame, err := NewAudioAppend(chunk)
	if err != nil {
		return fmt.Errorf("failed to build append event: %w", err)
	}
	if err := c.writeUpstream(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to send audio upstream: %w", err)
	}
	c.lastIngest = time.Now()
	c.log.Debug().
		Int("bytes", len(chunk)).
		Float64("duration_ms", audio.DurationMs(len(chunk), UpstreamSampleRate)).
		Msg("sent audio chunk")
	return nil
}

// pumpUpstream forwards upstream frames to the client verbatim, observing
// event types for session bookkeeping along the way.
func (c *Conn) pumpUpstream() {
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		messageType, data, err := c.upstream.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Teardown already in progress; the read error is ours.
			default:
				c.log.Warn().Err(err).Msg("upstream read failed")
				c.writeClient(websocket.TextMessage, NewRelayError("upstream connection lost"))
				c.session.Fail("upstream connection lost")
			}
			return
		}

		c.observe(data)

		if err := c.writeClient(messageType, data); err != nil {
			c.log.Error().Err(err).Msg("client write failed")
			return
		}
	}
}

// observe inspects a relayed upstream frame for session bookkeeping. The
// frame itself is never altered.
func (c *Conn) observe(data []byte) {
	eventType, ok := PeekType(data)
	if !ok {
		return
	}
	c.log.Debug().Str("event", eventType).Msg("upstream event")

	switch eventType {
	case TypeAudioDelta:
		var ev AudioDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		pcm, err := audio.DecodePayload(ev.Delta)
		if err != nil {
			return
		}
		c.session.AddAudio(audio.Duration(len(pcm), UpstreamSampleRate).Seconds())
	case TypeTranscriptDone:
		var ev TranscriptDoneEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.session.AppendTranscript(ev.ItemID, ev.Transcript)
		c.log.Info().Str("transcript", ev.Transcript).Msg("response transcript")
	case TypeError:
		var ev ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.session.Fail(ev.Error.Message)
		c.log.Warn().
			Str("code", ev.Error.Code).
			Str("message", ev.Error.Message).
			Msg("upstream error event")
	}
}

func (c *Conn) writeUpstream(messageType int, data []byte) error {
	c.upstreamMu.Lock()
	defer c.upstreamMu.Unlock()
	if c.upstream == nil {
		return fmt.Errorf("upstream connection not established")
	}
	return c.upstream.WriteMessage(messageType, data)
}

func (c *Conn) writeClient(messageType int, data []byte) error {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	return c.client.WriteMessage(messageType, data)
}

// SendError surfaces a relay failure to the client as a single error event.
func (c *Conn) SendError(message string) {
	if err := c.writeClient(websocket.TextMessage, NewRelayError(message)); err != nil {
		c.log.Debug().Err(err).Msg("could not deliver error event")
	}
}

// Close tears down both sockets and finalizes the session. Safe to call
// from either pump; only the first call acts.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.ingestMu.Lock()
		if n := len(c.ingestBuf); n > 0 {
			c.log.Debug().Int("bytes", n).Msg("discarding buffered ingest audio")
			c.ingestBuf = c.ingestBuf[:0]
		}
		c.ingestMu.Unlock()

		closeFrame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")

		c.upstreamMu.Lock()
		if c.upstream != nil {
			_ = c.upstream.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(time.Second))
			c.upstream.Close()
		}
		c.upstreamMu.Unlock()

		c.clientMu.Lock()
		_ = c.client.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(time.Second))
		c.client.Close()
		c.clientMu.Unlock()

		c.session.Complete()
		c.log.Info().Msg("session closed")
	})
}
