package ice

import (
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/dns/dnsmessage"
)

// This module implements the RTCWeb mdns-ice-candidates proposal for using
// ephemeral Multicast DNS hostnames in place of local IP addresses in host
// candidates, so a candidate doesn't leak a device's real network address to
// a page before the user has granted camera/microphone permission. See
// https://tools.ietf.org/html/draft-ietf-rtcweb-mdns-ice-candidates-04
//
// Sans-I/O: this package only builds and parses mDNS messages. Binding to
// the 224.0.0.251/ff02::fb multicast groups and actually sending/receiving
// datagrams is the host's job, same as every other transport in this
// module.

// MDNSGroupAddr4 and MDNSGroupAddr6 are the multicast DNS addresses the host
// must join and send to, per RFC 6762.
var MDNSGroupAddr4 = &net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: 5353}
var MDNSGroupAddr6 = &net.UDPAddr{IP: net.ParseIP("ff02::fb"), Port: 5353}

// classMask is the high bit of the CLASS field, repurposed by mDNS as the
// unicast-response-requested / cache-flush bit (RFC 6762 §18.12-13).
const classMask = 1 << 15

// IsEphemeralLocalDomain reports whether host looks like an mDNS-ICE
// ephemeral hostname (a version-4 UUID followed by ".local").
func IsEphemeralLocalDomain(host string) bool {
	return strings.HasSuffix(host, ".local") && strings.Count(host, ".") == 1 && len(host) >= 36+6
}

// NewEphemeralHostname generates a fresh mDNS-ICE hostname for a host
// candidate (RFC draft §3.1.1): a random v4 UUID plus ".local".
func NewEphemeralHostname() string {
	return uuid.New().String() + ".local"
}

// MDNSRecord is a cached name/address association: either one we've
// announced ourselves (Ours) or one we learned by resolving the peer's
// hostname.
type MDNSRecord struct {
	Name    string
	IP      net.IP
	Expires time.Time
	Ours    bool
}

// MDNSResolver builds and interprets mDNS query/response datagrams and
// tracks name resolutions, independent of any socket.
type MDNSResolver struct {
	cache map[string]*MDNSRecord // keyed by the UUID part of the hostname
}

// NewMDNSResolver creates an empty resolver.
func NewMDNSResolver() *MDNSResolver {
	return &MDNSResolver{cache: make(map[string]*MDNSRecord)}
}

// Announce records a local candidate's ephemeral hostname/address pair and
// returns the unsolicited response datagram to send to both multicast
// groups (RFC 6762 §8.3).
func (r *MDNSResolver) Announce(name string, ip net.IP, ttl time.Duration) ([]byte, error) {
	uid := uuidPart(name)
	rec := &MDNSRecord{Name: name, IP: ip, Expires: time.Now().Add(ttl), Ours: true}
	r.cache[uid] = rec
	return buildResponse(rec)
}

// BuildQuery returns the datagram to send (to both multicast groups) to
// resolve host to an address.
func (r *MDNSResolver) BuildQuery(host string) ([]byte, error) {
	name, err := dnsmessage.NewName(host + ".")
	if err != nil {
		return nil, err
	}
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{ID: 0})
	b.EnableCompression()
	b.StartQuestions()
	b.Question(dnsmessage.Question{Name: name, Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET | classMask})
	b.Question(dnsmessage.Question{Name: name, Type: dnsmessage.TypeAAAA, Class: dnsmessage.ClassINET | classMask})
	return b.Finish()
}

// Resolve returns the cached address for host, if any has been learned.
func (r *MDNSResolver) Resolve(host string) (net.IP, bool) {
	rec, ok := r.cache[uuidPart(host)]
	if !ok || rec.IP == nil {
		return nil, false
	}
	return rec.IP, true
}

// HandleMessage parses an inbound mDNS datagram (from either multicast
// group). It returns a response datagram to send back (or nil) when the
// message is a question we can authoritatively answer.
func (r *MDNSResolver) HandleMessage(data []byte, unicastOnly bool) ([]byte, error) {
	var p dnsmessage.Parser
	hdr, err := p.Start(data)
	if err != nil {
		return nil, err
	}
	if hdr.OpCode != 0 {
		return nil, nil // RFC 6762 §18.3: ignore non-zero OPCODE
	}

	for {
		q, err := p.Question()
		if err == dnsmessage.ErrSectionDone {
			break
		}
		if err != nil {
			return nil, err
		}
		if resp := r.handleQuestion(&q); resp != nil {
			return resp, nil
		}
	}

	for {
		a, err := p.Answer()
		if err == dnsmessage.ErrSectionDone {
			break
		}
		if err != nil {
			return nil, err
		}
		r.handleAnswer(&a)
	}
	return nil, nil
}

func (r *MDNSResolver) handleQuestion(q *dnsmessage.Question) []byte {
	name := q.Name.String()
	name = strings.TrimSuffix(name, ".")
	if !IsEphemeralLocalDomain(name) {
		return nil
	}
	rec, found := r.cache[uuidPart(name)]
	if !found || !rec.Ours || q.Type != recordType(rec.IP) {
		return nil
	}
	if time.Now().After(rec.Expires) {
		delete(r.cache, uuidPart(name))
		return nil
	}
	resp, err := buildResponse(rec)
	if err != nil {
		return nil
	}
	return resp
}

func (r *MDNSResolver) handleAnswer(a *dnsmessage.Resource) {
	if a.Header.Class&^classMask != dnsmessage.ClassINET {
		return
	}
	name := strings.TrimSuffix(a.Header.Name.String(), ".")
	if !IsEphemeralLocalDomain(name) {
		return
	}

	var ip net.IP
	switch res := a.Body.(type) {
	case *dnsmessage.AResource:
		ip = append(net.IP{}, res.A[:]...)
	case *dnsmessage.AAAAResource:
		ip = append(net.IP{}, res.AAAA[:]...)
	default:
		return
	}

	uid := uuidPart(name)
	expires := time.Now().Add(time.Duration(a.Header.TTL) * time.Second)
	if rec, ok := r.cache[uid]; ok {
		rec.IP = ip
		rec.Expires = expires
	} else {
		r.cache[uid] = &MDNSRecord{Name: name, IP: ip, Expires: expires}
	}
}

func buildResponse(rec *MDNSRecord) ([]byte, error) {
	name, err := dnsmessage.NewName(rec.Name + ".")
	if err != nil {
		return nil, err
	}
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{
		Response:      true,
		Authoritative: true,
		RCode:         dnsmessage.RCodeSuccess,
	})
	b.EnableCompression()
	b.StartAnswers()
	resHdr := dnsmessage.ResourceHeader{
		Name:  name,
		Class: dnsmessage.ClassINET,
		TTL:   uint32(time.Until(rec.Expires) / time.Second),
	}
	if ip4 := rec.IP.To4(); ip4 != nil {
		var res dnsmessage.AResource
		copy(res.A[:], ip4)
		if err := b.AResource(resHdr, res); err != nil {
			return nil, err
		}
	} else {
		var res dnsmessage.AAAAResource
		copy(res.AAAA[:], rec.IP.To16())
		if err := b.AAAAResource(resHdr, res); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}

func recordType(ip net.IP) dnsmessage.Type {
	if ip.To4() != nil {
		return dnsmessage.TypeA
	}
	return dnsmessage.TypeAAAA
}

func uuidPart(host string) string {
	return strings.TrimSuffix(host, ".local")
}
