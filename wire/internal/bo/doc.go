// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bo provides native byte order selection, used by wire to pick the
// default on-the-wire byte order for a tunnel endpoint: Wayland messages are
// native-endian on the host that produced them, so a relay that never
// changes architecture across a hop can default to the host's own order
// instead of forcing a cross-endian conversion on every message.
package bo
