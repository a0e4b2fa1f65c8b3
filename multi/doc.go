// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package multi binds a transfer engine to an external reactor. The driver
// mirrors the engine's socket interest into reactor watches, collapses its
// wakeup requests into a single pending reactor timer, and resolves
// submitted operations as the engine reports transfers finished.
package multi
