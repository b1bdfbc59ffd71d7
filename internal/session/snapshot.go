package session

// Snapshot is a point-in-time view of the facade for status output.
type Snapshot struct {
	Connected     bool           `yaml:"connected"`
	HWServerURL   string         `yaml:"hw_server_url,omitempty"`
	CSServerURL   string         `yaml:"cs_server_url,omitempty"`
	Device        string         `yaml:"device,omitempty"`
	MemoryTargets []string       `yaml:"memory_targets,omitempty"`
	PDIFile       string         `yaml:"pdi_file,omitempty"`
	LTXFile       string         `yaml:"ltx_file,omitempty"`
	Cores         Discovery      `yaml:"cores"`
	SelectedIla   string         `yaml:"selected_ila,omitempty"`
	ProbeTriggers []ProbeTrigger `yaml:"probe_triggers,omitempty"`
	Links         []string       `yaml:"links,omitempty"`
	EyeScans      []string       `yaml:"eye_scans,omitempty"`
}

// Snapshot copies the facade state without touching the device.
func (f *Facade) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap := Snapshot{
		Connected:     f.sess != nil,
		HWServerURL:   f.hwURL,
		CSServerURL:   f.csURL,
		MemoryTargets: append([]string(nil), f.memoryTargets...),
		PDIFile:       f.pdiFile,
		LTXFile:       f.ltxFile,
		ProbeTriggers: append([]ProbeTrigger(nil), f.probeTriggers...),
		Cores: Discovery{
			Ibert: f.ibert != nil,
			Pcie:  f.pcie != nil,
		},
	}
	if f.device != nil {
		snap.Device = f.device.Name()
	}
	for _, core := range f.ilas {
		snap.Cores.Ila = append(snap.Cores.Ila, core.Name())
	}
	if f.selectedIla != nil {
		snap.SelectedIla = f.selectedIla.Name()
	}
	for _, l := range f.links {
		snap.Links = append(snap.Links, l.Name())
	}
	for _, scan := range f.eyeScans {
		snap.EyeScans = append(snap.EyeScans, scan.Name())
	}
	return snap
}
