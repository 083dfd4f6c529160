package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"

	"github.com/mmr-tortoise/dockports/internal/model"
)

// wellKnownPorts maps IANA well-known and de-facto standard ports to
// service names. Operator entries in the service-name file take
// precedence over this table.
var wellKnownPorts = map[int]string{
	21:    "FTP",
	22:    "SSH",
	23:    "Telnet",
	25:    "SMTP",
	53:    "DNS",
	67:    "DHCP Server",
	68:    "DHCP Client",
	69:    "TFTP",
	80:    "HTTP",
	110:   "POP3",
	123:   "NTP",
	135:   "RPC",
	137:   "NetBIOS Name",
	138:   "NetBIOS Datagram",
	139:   "NetBIOS Session",
	143:   "IMAP",
	161:   "SNMP",
	389:   "LDAP",
	443:   "HTTPS",
	445:   "SMB",
	465:   "SMTPS",
	514:   "Syslog",
	587:   "SMTP Submission",
	631:   "IPP",
	636:   "LDAPS",
	993:   "IMAPS",
	995:   "POP3S",
	1433:  "SQL Server",
	1521:  "Oracle",
	3306:  "MySQL",
	3389:  "RDP",
	5432:  "PostgreSQL",
	5900:  "VNC",
	6379:  "Redis",
	8080:  "HTTP Proxy",
	8443:  "HTTPS Alt",
	9200:  "Elasticsearch",
	27017: "MongoDB",
}

// ServiceNames maps port numbers to human-readable service names. The
// operator's entries live in a JSONC file (comments and trailing commas
// allowed, since the file is meant to be hand-edited) and overlay the
// built-in well-known table.
type ServiceNames struct {
	path string

	mu     sync.RWMutex
	custom map[string]int // name → port, as stored in the file
	byPort map[int]string // derived reverse index, custom entries only
}

// LoadServiceNames opens the service-name map backed by the given JSONC
// file. A missing file yields an empty map; a malformed file is a
// configuration error. Values that are not integral port numbers are
// skipped rather than rejected, so one stray entry does not take the
// whole map down.
func LoadServiceNames(path string) (*ServiceNames, error) {
	s := &ServiceNames{
		path:   path,
		custom: make(map[string]int),
		byPort: make(map[int]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, model.WrapError(model.KindConfig, fmt.Sprintf("failed to read service names file %s", path), err)
	}

	var raw map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, model.WrapError(model.KindConfig, fmt.Sprintf("failed to parse service names file %s", path), err)
	}
	for name, value := range raw {
		port, ok := value.(float64)
		if !ok || port != float64(int(port)) || !model.ValidPort(int(port)) {
			continue
		}
		s.custom[name] = int(port)
	}
	s.rebuildIndex()
	return s, nil
}

// rebuildIndex recomputes the port→name reverse index. Names are
// visited in sorted order so a duplicate port deterministically
// resolves to the lexicographically last name.
func (s *ServiceNames) rebuildIndex() {
	s.byPort = make(map[int]string, len(s.custom))
	names := make([]string, 0, len(s.custom))
	for name := range s.custom {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.byPort[s.custom[name]] = name
	}
}

// Lookup resolves a service name for a port: the operator's entries
// first, then the well-known table. Returns "" for unnamed ports.
func (s *ServiceNames) Lookup(port int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name, ok := s.byPort[port]; ok {
		return name
	}
	return wellKnownPorts[port]
}

// All returns a copy of the operator's name→port entries.
func (s *ServiceNames) All() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.custom))
	for name, port := range s.custom {
		out[name] = port
	}
	return out
}

// Set records one name→port mapping and persists the map. Any other
// name previously mapped to the same port is displaced, matching how an
// operator renames a service. The updated map is returned.
func (s *ServiceNames) Set(name string, port int) (map[string]int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewError(model.KindConfig, "service name must not be empty")
	}
	if !model.ValidPort(port) {
		return nil, &model.AppError{
			Kind:         model.KindInvalidPort,
			Message:      fmt.Sprintf("port numbers must be in range %d-%d", model.MinPort, model.MaxPort),
			InvalidPorts: []int{port},
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := make(map[string]int, len(s.custom)+1)
	for n, p := range s.custom {
		if p == port {
			continue
		}
		working[n] = p
	}
	working[name] = port

	if err := persistNames(s.path, working); err != nil {
		return nil, err
	}
	s.custom = working
	s.rebuildIndex()

	out := make(map[string]int, len(working))
	for n, p := range working {
		out[n] = p
	}
	return out, nil
}

// persistNames atomically replaces the service-name file. Plain JSON is
// valid JSONC, so the rewrite stays readable by the same loader; any
// hand-written comments are lost on rewrite, which is the accepted
// trade-off for durable updates.
func persistNames(path string, entries map[string]int) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return model.WrapError(model.KindPersistence, "failed to encode service names", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.WrapError(model.KindPersistence, fmt.Sprintf("failed to create state directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, ".service-names-*.json")
	if err != nil {
		return model.WrapError(model.KindPersistence, "failed to create temporary state file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return model.WrapError(model.KindPersistence, "failed to write service names", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return model.WrapError(model.KindPersistence, "failed to write service names", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return model.WrapError(model.KindPersistence, fmt.Sprintf("failed to replace state file %s", path), err)
	}
	return nil
}
