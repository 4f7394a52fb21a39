//go:build !windows

package supervisor

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/psantana5/dockerapp/internal/cgroups"
	"github.com/psantana5/dockerapp/internal/wrapper"
)

// ProcessSpawner starts `<Path> worker ...` processes that inherit the
// listen socket as their first extra file.
type ProcessSpawner struct {
	Path string
	// Args follow the worker's own flags.
	Args     []string
	Env      []string
	Listener *os.File
	Limits   *cgroups.Limits
	Log      *zap.SugaredLogger
}

func (p *ProcessSpawner) Spawn(req SpawnRequest) (Worker, error) {
	args := append([]string{
		"worker",
		"--worker-id", strconv.Itoa(req.WorkerID),
		"--heartbeat", req.HeartbeatPath,
	}, p.Args...)

	env := append(append([]string{}, p.Env...), InstanceEnv+"="+req.Instance)

	log := p.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	proc, err := wrapper.Start(wrapper.Spec{
		WorkerID:   req.WorkerID,
		Path:       p.Path,
		Args:       args,
		Env:        env,
		ExtraFiles: []*os.File{p.Listener},
		Limits:     p.Limits,
	}, log)
	if err != nil {
		return nil, err
	}
	return proc, nil
}

// Listen binds addr once and returns the listener plus a file handle for
// passing it to workers.
func Listen(addr string) (net.Listener, *os.File, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, nil, fmt.Errorf("unexpected listener type %T", ln)
	}
	f, err := tcp.File()
	if err != nil {
		ln.Close()
		return nil, nil, fmt.Errorf("failed to get listener fd: %w", err)
	}
	return ln, f, nil
}
