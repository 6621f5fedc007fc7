package phm

import (
	"encoding/binary"

	"github.com/ecucore/coreem/internal/transport"
)

// Well-known PHM service coordinates. Values are implementation
// parameters per spec.md §6; chosen in the SOME/IP private range.
const (
	ServiceID        uint16 = 0x4000
	InstanceID       uint16 = 0x0001
	MethodAlive      uint16 = 0x0001
	MethodCheckpoint uint16 = 0x0002
)

// Client is the façade a supervised app uses to report its own health
// over the transport binding. Constructing one ensures the transport
// is initialized under the given app name.
type Client struct {
	appName string
	binding *transport.Binding
}

// NewClient ensures the process-wide transport binding is initialized
// under appName and returns a Client bound to it.
func NewClient(appName string) *Client {
	return NewClientWithBinding(appName, transport.Init(appName))
}

// NewClientWithBinding builds a Client over an already-constructed
// binding, letting tests and multi-binding-per-process callers avoid
// the process-wide singleton.
func NewClientWithBinding(appName string, binding *transport.Binding) *Client {
	return &Client{appName: appName, binding: binding}
}

// Connect requests the PHM service on its well-known coordinates.
func (c *Client) Connect() error {
	return c.binding.RequestService(ServiceID, InstanceID)
}

// ReportAlive sends a fire-and-forget alive report with an empty payload.
func (c *Client) ReportAlive() {
	c.binding.SendRequestAsync(ServiceID, InstanceID, MethodAlive, nil, nil)
}

// ReportCheckpoint sends a fire-and-forget checkpoint report, encoding
// id as a 4-byte big-endian unsigned integer.
func (c *Client) ReportCheckpoint(id uint32) {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, id)
	c.binding.SendRequestAsync(ServiceID, InstanceID, MethodCheckpoint, payload, nil)
}
