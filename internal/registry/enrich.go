package registry

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/serverforge/serverforge/internal/domain"
)

// enrich overlays server-ip, server-port, max-players and motd parsed from
// the instance's own server.properties onto its runtime snapshot, per spec
// §4.5 "Enrichment". Errors are non-fatal: a missing or unreadable
// properties file just leaves Runtime at its zero value.
func enrich(inst *domain.Instance) {
	ip, port, maxPlayers, motd := parseProperties(inst.Path)
	inst.Runtime.IP = ip
	inst.Runtime.Port = port
	inst.Runtime.MaxPlayers = maxPlayers
	inst.Runtime.MOTD = motd
}

func parseProperties(dir string) (ip string, port int, maxPlayers int, motd string) {
	f, err := os.Open(filepath.Join(dir, "server.properties"))
	if err != nil {
		return "", 0, 0, ""
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		props[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	ip = props["server-ip"]
	motd = props["motd"]
	if p, err := strconv.Atoi(props["server-port"]); err == nil {
		port = p
	}
	if mp, err := strconv.Atoi(props["max-players"]); err == nil {
		maxPlayers = mp
	}
	return ip, port, maxPlayers, motd
}
