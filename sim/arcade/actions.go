package arcade

import "fmt"

// Action codes follow the conventional 18-action arcade joystick layout.
const (
	Noop = iota
	Fire
	Up
	Right
	Left
	Down
	UpRight
	UpLeft
	DownRight
	DownLeft
	UpFire
	RightFire
	LeftFire
	DownFire
	UpRightFire
	UpLeftFire
	DownRightFire
	DownLeftFire

	numActions
)

var actionNames = [numActions]string{
	"NOOP", "FIRE", "UP", "RIGHT", "LEFT", "DOWN",
	"UPRIGHT", "UPLEFT", "DOWNRIGHT", "DOWNLEFT",
	"UPFIRE", "RIGHTFIRE", "LEFTFIRE", "DOWNFIRE",
	"UPRIGHTFIRE", "UPLEFTFIRE", "DOWNRIGHTFIRE", "DOWNLEFTFIRE",
}

// ActionName returns the joystick name of an action code.
func ActionName(action int) string {
	if action < 0 || action >= numActions {
		return fmt.Sprintf("ACTION_%d", action)
	}
	return actionNames[action]
}

// Every legal code is accepted by every game, not only the codes in its
// minimal action set; unused directions are ignored.
func legal(action int) bool { return action >= 0 && action < numActions }

func pressesFire(action int) bool {
	switch action {
	case Fire, UpFire, RightFire, LeftFire, DownFire, UpRightFire, UpLeftFire, DownRightFire, DownLeftFire:
		return true
	}
	return false
}

// horizontal returns -1, 0 or +1 for the action's left/right component.
func horizontal(action int) int {
	switch action {
	case Right, UpRight, DownRight, RightFire, UpRightFire, DownRightFire:
		return 1
	case Left, UpLeft, DownLeft, LeftFire, UpLeftFire, DownLeftFire:
		return -1
	}
	return 0
}

// vertical returns -1 (up), 0 or +1 (down) for the action's vertical component.
func vertical(action int) int {
	switch action {
	case Up, UpRight, UpLeft, UpFire, UpRightFire, UpLeftFire:
		return -1
	case Down, DownRight, DownLeft, DownFire, DownRightFire, DownLeftFire:
		return 1
	}
	return 0
}
