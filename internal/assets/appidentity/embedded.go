package appidentityassets

import _ "embed"

// YAML is the embedded copy of `.fulmen/app.yaml` so the marketlens binary
// resolves its identity when run outside the repository. Keep both files in
// sync when the identity changes.
//
//go:embed app.yaml
var YAML []byte
