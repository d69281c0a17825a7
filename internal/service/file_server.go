package service

import (
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/channel"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
	"github.com/ocvsmd-go/ocvsmd/pkg/fileserver"
)

// Service names of spec.md §4.9, grounded on
// original_source/src/common/svc/file_server/{list_roots,pop_root,push_root}_spec.hpp.
const (
	ListRootsServiceName = "ocvsmd.svc.file_server.list_roots"
	PopRootServiceName   = "ocvsmd.svc.file_server.pop_root"
	PushRootServiceName  = "ocvsmd.svc.file_server.push_root"
)

// RootEntry is one streamed Input of the list_roots service.
type RootEntry struct {
	Path string `json:"path"`
}

// RootRequest is the request payload shared by pop_root and push_root: a
// path (push only) and the end of the list to operate on.
type RootRequest struct {
	Path   string `json:"path,omitempty"`
	AtBack bool   `json:"at_back"`
}

// RootResult is the response of pop_root: the removed path, if any.
type RootResult struct {
	Path  string `json:"path"`
	Found bool   `json:"found"`
}

// FileServerService hosts the three file-server root administration
// operations over a single in-memory Roots list, grounded on
// original_source/src/daemon/engine/svc/file_server/*_service.cpp (each a
// thin synchronous wrapper around cyphal::FileProvider's root list, ported
// here to pkg/fileserver.Roots since the uavcan.file transport side is out
// of scope).
type FileServerService struct {
	roots *fileserver.Roots
	log   *ipclog.Logger
}

// NewFileServerService constructs the service host bound to roots.
func NewFileServerService(roots *fileserver.Roots, log *ipclog.Logger) *FileServerService {
	return &FileServerService{roots: roots, log: log.Fork("file_server")}
}

// RegisterWith binds all three operations to r.
func (s *FileServerService) RegisterWith(r *router.ServerRouter) error {
	if err := r.RegisterService(ListRootsServiceName, s.listRootsFactory); err != nil {
		return err
	}
	if err := r.RegisterService(PopRootServiceName, s.popRootFactory); err != nil {
		return err
	}
	return r.RegisterService(PushRootServiceName, s.pushRootFactory)
}

func (s *FileServerService) listRootsFactory(raw *router.ServerChannel) router.ChannelHandler {
	codec := channel.JSONCodec[RootEntry]{}
	return func(ev router.ChannelEvent) {
		if ev.Kind != router.EventInput {
			return
		}
		for _, path := range s.roots.List() {
			payload, err := codec.Marshal(RootEntry{Path: path})
			if err != nil {
				continue
			}
			if err := raw.Send(payload); err != nil {
				s.log.Warnf("list_roots: failed to send entry: %s", err)
			}
		}
		raw.Complete(ipcerr.OK)
	}
}

func (s *FileServerService) popRootFactory(raw *router.ServerChannel) router.ChannelHandler {
	reqCodec := channel.JSONCodec[RootRequest]{}
	respCodec := channel.JSONCodec[RootResult]{}
	return func(ev router.ChannelEvent) {
		if ev.Kind != router.EventInput {
			return
		}
		req, err := reqCodec.Unmarshal(ev.Payload)
		if err != nil {
			raw.Complete(ipcerr.EINVAL)
			return
		}
		path, found := s.roots.Pop(req.AtBack)
		payload, _ := respCodec.Marshal(RootResult{Path: path, Found: found})
		if err := raw.Send(payload); err != nil {
			s.log.Warnf("pop_root: failed to send result: %s", err)
		}
		raw.Complete(ipcerr.OK)
	}
}

func (s *FileServerService) pushRootFactory(raw *router.ServerChannel) router.ChannelHandler {
	reqCodec := channel.JSONCodec[RootRequest]{}
	return func(ev router.ChannelEvent) {
		if ev.Kind != router.EventInput {
			return
		}
		req, err := reqCodec.Unmarshal(ev.Payload)
		if err != nil {
			raw.Complete(ipcerr.EINVAL)
			return
		}
		s.roots.Push(req.Path, req.AtBack)
		raw.Complete(ipcerr.OK)
	}
}
