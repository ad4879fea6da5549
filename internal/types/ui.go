package types

type CountImage struct {
	GridX  int      `json:"grid_x"`
	GridY  int      `json:"grid_y"`
	Values []uint32 `json:"values"`
}

type UISnapshot struct {
	Type    string     `json:"type"`
	Summary Summary    `json:"summary"`
	Image   CountImage `json:"image"`
}
