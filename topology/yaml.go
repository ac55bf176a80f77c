package topology

import (
	"gopkg.in/yaml.v3"

	"umd/arch"
	"umd/coord"
	"umd/errs"
)

// clusterDoc is the YAML-serializable projection of a ClusterDescriptor
// (spec.md §6.4). Exit-chip and closest-MMIO caches are recomputed on
// load rather than round-tripped, since they're pure functions of the
// fields below.
type clusterDoc struct {
	Arch                map[int]string       `yaml:"arch"`
	Chips               map[int][4]int       `yaml:"chips"` // x, y, rack, shelf
	ChipsWithMMIO       []map[int]int        `yaml:"chips_with_mmio"`
	EthernetConnections [][2]map[string]int  `yaml:"ethernet_connections"`
	Harvesting          map[int]harvestDoc   `yaml:"harvesting"`
	BoardType           map[int]string       `yaml:"boardtype"`
}

type harvestDoc struct {
	NocTranslation bool   `yaml:"noc_translation"`
	HarvestMask    uint32 `yaml:"harvest_mask"`
}

var boardTypeNames = map[coord.BoardType]string{
	coord.BoardN300: "n300",
	coord.BoardN150: "n150",
	coord.BoardP100: "p100",
	coord.BoardP150: "p150",
}

var boardTypeValues = func() map[string]coord.BoardType {
	m := make(map[string]coord.BoardType, len(boardTypeNames))
	for k, v := range boardTypeNames {
		m[v] = k
	}
	return m
}()

// Marshal serializes a ClusterDescriptor to the YAML interface spec.md
// §6.4 defines, used for reproducible discovery snapshots (spec.md §4.9
// step 8).
func Marshal(desc *ClusterDescriptor) ([]byte, error) {
	doc := clusterDoc{
		Arch:       make(map[int]string),
		Chips:      make(map[int][4]int),
		Harvesting: make(map[int]harvestDoc),
		BoardType:  make(map[int]string),
	}
	for id := range desc.AllChips {
		doc.Arch[int(id)] = desc.Archs[id].String()
		loc := desc.ChipLocations[id]
		doc.Chips[int(id)] = [4]int{loc.X, loc.Y, loc.Rack, loc.Shelf}
		info := desc.ChipInfos[id]
		doc.Harvesting[int(id)] = harvestDoc{
			NocTranslation: info.NocTranslationEnabled,
			HarvestMask:    info.HarvestingMasks.Tensix,
		}
		doc.BoardType[int(id)] = boardTypeNames[info.BoardType]
	}
	for id, pciIdx := range desc.ChipsWithMMIO {
		doc.ChipsWithMMIO = append(doc.ChipsWithMMIO, map[int]int{int(id): pciIdx})
	}
	seen := make(map[EthEndpoint]bool)
	for local, remote := range desc.EthernetConnections {
		if seen[local] || seen[remote] {
			continue
		}
		seen[local], seen[remote] = true, true
		doc.EthernetConnections = append(doc.EthernetConnections, [2]map[string]int{
			{"chip": int(local.Chip), "chan": int(local.Channel)},
			{"chip": int(remote.Chip), "chan": int(remote.Channel)},
		})
	}
	return yaml.Marshal(doc)
}

// Unmarshal parses a ClusterDescriptor previously written by Marshal and
// rebuilds its derived state (cluster ids, exit chips, closest-MMIO
// routing) — chip ids may be relabeled but the graph they describe is the
// same, matching spec.md §8's round-trip law "up to chip-id relabeling".
func Unmarshal(data []byte) (*ClusterDescriptor, error) {
	var doc clusterDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.KindIoError, "parsing cluster descriptor yaml", err)
	}

	desc := newClusterDescriptor()
	for idStr, archStr := range doc.Arch {
		id := ChipId(idStr)
		a, err := arch.Parse(archStr)
		if err != nil {
			return nil, errs.Wrap(errs.KindTopologyError, "unknown arch in cluster descriptor", err)
		}
		desc.AllChips[id] = true
		desc.Archs[id] = a

		xyrs := doc.Chips[idStr]
		desc.ChipLocations[id] = EthCoord{X: xyrs[0], Y: xyrs[1], Rack: xyrs[2], Shelf: xyrs[3]}

		h := doc.Harvesting[idStr]
		desc.ChipInfos[id] = ChipInfo{
			NocTranslationEnabled: h.NocTranslation,
			HarvestingMasks:       coord.HarvestingMasks{Tensix: h.HarvestMask},
			BoardType:             boardTypeValues[doc.BoardType[idStr]],
		}
	}
	for _, entry := range doc.ChipsWithMMIO {
		for id, pciIdx := range entry {
			desc.ChipsWithMMIO[ChipId(id)] = pciIdx
		}
	}
	for _, pair := range doc.EthernetConnections {
		local := EthEndpoint{Chip: ChipId(pair[0]["chip"]), Channel: Channel(pair[0]["chan"])}
		remote := EthEndpoint{Chip: ChipId(pair[1]["chip"]), Channel: Channel(pair[1]["chan"])}
		desc.EthernetConnections[local] = remote
		desc.EthernetConnections[remote] = local
	}

	assignClusterIDs(desc)
	if err := computeExitChips(desc); err != nil {
		return nil, err
	}
	computeClosestMMIO(desc)
	return desc, nil
}
