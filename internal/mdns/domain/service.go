package domain

import "go.uber.org/multierr"

// ServiceRecords bundles the resource records that together advertise one
// DNS-SD service instance (RFC 6763 §4/§6): a PTR from the service type to
// the instance, an SRV naming the host and port, a TXT carrying key/value
// metadata, and the address records of the host itself. Subtype PTRs
// (RFC 6763 §7.1) are carried separately since they share the SRV/TXT pair
// but live under a different PTR owner name.
type ServiceRecords struct {
	PTR         ResourceRecord
	SubtypePTRs []ResourceRecord
	SRV         ResourceRecord
	TXT         ResourceRecord
	HostAddrs   []ResourceRecord
}

// AllRecords returns every record in canonical advertisement order: PTR,
// subtype PTRs, SRV, TXT, then host addresses. Callers that need a
// particular section split (e.g. an announcement packet) pick fields
// directly instead.
func (s ServiceRecords) AllRecords() []ResourceRecord {
	out := make([]ResourceRecord, 0, 3+len(s.SubtypePTRs)+len(s.HostAddrs))
	out = append(out, s.PTR)
	out = append(out, s.SubtypePTRs...)
	out = append(out, s.SRV, s.TXT)
	out = append(out, s.HostAddrs...)
	return out
}

// Validate checks every record in the bundle, collecting every violation
// with multierr.Append rather than stopping at the first malformed record:
// a responder about to announce a whole service instance wants every
// problem with it surfaced at once, not one fix-and-retry at a time.
func (s ServiceRecords) Validate() error {
	var err error
	err = multierr.Append(err, s.PTR.Validate())
	for _, rr := range s.SubtypePTRs {
		err = multierr.Append(err, rr.Validate())
	}
	err = multierr.Append(err, s.SRV.Validate())
	err = multierr.Append(err, s.TXT.Validate())
	for _, rr := range s.HostAddrs {
		err = multierr.Append(err, rr.Validate())
	}
	return err
}

// Service is the collaborator contract a responder implementation supplies
// to the probing and response-building logic (§3/§6): everything the core
// engine needs to know about one locally-hosted service instance, without
// depending on how that instance decides its own name or is configured.
type Service interface {
	// GetFQDN returns the service instance's current fully-qualified owner
	// name, e.g. "My Printer._ipp._tcp.local.".
	GetFQDN() Name

	// GetHostname returns the owner name of the host records (SRV target
	// and A/AAAA), e.g. "myprinter.local.".
	GetHostname() Name

	// IncrementName mutates the service's instance name to the next
	// candidate in a conflict-renaming sequence ("My Printer (2)") and
	// returns the new FQDN. Called by the prober on PROBE_CONFLICT.
	IncrementName() Name

	// Records returns the current record set for this service, reflecting
	// whatever name IncrementName last produced.
	Records() ServiceRecords
}
