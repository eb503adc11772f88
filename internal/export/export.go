// Package export provides an optional secondary gRPC stream of venue
// Frames for non-browser consumers (the primary real-time channel is
// internal/fanout's websocket hub). Frames are carried as
// google.protobuf.Struct values rather than a generated message type:
// no .proto pipeline runs in this build, so the wire schema is dynamic
// rather than statically generated.
// TODO: replace structpb payloads with a generated FrameBundle message
// once a .proto file and protoc step are added to the build.
package export

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/venuetrack/engine/internal/aggregator"
)

type clientStream struct {
	id     uint64
	venue  string
	frames chan *structpb.Struct
	done   chan struct{}
}

// Publisher fans out Frames to subscribed gRPC streaming clients,
// scoped per venue. Clients that fall behind have frames dropped from
// their channel rather than blocking the publisher.
type Publisher struct {
	mu      sync.RWMutex
	clients map[uint64]*clientStream
	nextID  atomic.Uint64
	log     *slog.Logger
}

// NewPublisher returns an empty Publisher.
func NewPublisher(log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{clients: make(map[uint64]*clientStream), log: log}
}

func (p *Publisher) subscribe(venue string) *clientStream {
	c := &clientStream{
		id:     p.nextID.Add(1),
		venue:  venue,
		frames: make(chan *structpb.Struct, 10),
		done:   make(chan struct{}),
	}
	p.mu.Lock()
	p.clients[c.id] = c
	p.mu.Unlock()
	return c
}

func (p *Publisher) unsubscribe(id uint64) {
	p.mu.Lock()
	if c, ok := p.clients[id]; ok {
		delete(p.clients, id)
		close(c.done)
	}
	p.mu.Unlock()
}

// PublishFrame delivers a Frame to every subscriber of its venue.
func (p *Publisher) PublishFrame(f aggregator.Frame) {
	msg, err := frameToStruct(f)
	if err != nil {
		p.log.Error("export: frame encode failed", "venue", f.VenueID, "err", err)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.clients {
		if c.venue != f.VenueID {
			continue
		}
		select {
		case c.frames <- msg:
		default:
			p.log.Warn("export: slow gRPC client, dropping frame", "venue", f.VenueID)
		}
	}
}

func frameToStruct(f aggregator.Frame) (*structpb.Struct, error) {
	tracks := make([]any, 0, len(f.Tracks))
	for _, t := range f.Tracks {
		rois := make([]any, 0, len(t.RoiSet))
		for roiID := range t.RoiSet {
			rois = append(rois, roiID)
		}
		tracks = append(tracks, map[string]any{
			"trackKey": string(t.TrackKey),
			"x":        t.LatestSample.X,
			"z":        t.LatestSample.Z,
			"rois":     rois,
		})
	}
	removed := make([]any, 0, len(f.Removed))
	for _, k := range f.Removed {
		removed = append(removed, string(k))
	}
	return structpb.NewStruct(map[string]any{
		"venueId": f.VenueID,
		"ts":      f.Ts.UnixMilli(),
		"tracks":  tracks,
		"removed": removed,
	})
}

// Server implements the FrameExportService gRPC service over Publisher.
type Server struct {
	publisher *Publisher
}

// NewServer returns a Server backed by publisher.
func NewServer(publisher *Publisher) *Server {
	return &Server{publisher: publisher}
}

func (s *Server) streamFrames(venue string, ctx context.Context, send func(*structpb.Struct) error) error {
	c := s.publisher.subscribe(venue)
	defer s.publisher.unsubscribe(c.id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case msg := <-c.frames:
			if err := send(msg); err != nil {
				return err
			}
		}
	}
}

func streamFramesHandler(srv any, stream grpc.ServerStream) error {
	s := srv.(*Server)

	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	venueID := ""
	if venue := req.Fields["venueId"]; venue != nil {
		venueID = venue.GetStringValue()
	}

	return s.streamFrames(venueID, stream.Context(), func(msg *structpb.Struct) error {
		return stream.SendMsg(msg)
	})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "venuetrack.export.FrameExportService",
	HandlerType: (*Server)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamFrames",
			Handler:       streamFramesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "internal/export/export.go",
}

// RegisterService registers the FrameExportService with grpcServer.
func RegisterService(grpcServer *grpc.Server, server *Server) {
	grpcServer.RegisterService(&serviceDesc, server)
}
