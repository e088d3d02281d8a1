// Package mission turns raw mission telemetry values into the sentences
// shown to judges and spectators. Each mission reports a fixed sequence of
// values; curr is the zero-based index into that sequence.
package mission

import (
	"fmt"
	"strconv"
	"strings"
)

// Mission identifiers as robots report them.
const (
	CrashSite = 0
	Data      = 1
	Material  = 2
	Fire      = 3
	Water     = 4
)

// unknownValue stands in for a reported value outside the documented range.
const unknownValue = "?????"

// FromTeamType maps the teamType string from a begin frame to its mission
// identifier.
func FromTeamType(teamType string) (int, bool) {
	switch teamType {
	case "CRASH_SITE":
		return CrashSite, true
	case "DATA":
		return Data, true
	case "MATERIAL":
		return Material, true
	case "FIRE":
		return Fire, true
	case "WATER":
		return Water, true
	}
	return 0, false
}

// Message formats the human-readable line for one mission value. The raw
// value arrives as text from the robot and must parse as an integer.
func Message(curr, mission int, raw string) string {
	msg, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "ERROR - invalid mission call"
	}

	switch mission {
	case CrashSite:
		switch curr {
		case 0:
			dir := unknownValue
			switch msg {
			case 0:
				dir = "+x"
			case 1:
				dir = "-x"
			case 2:
				dir = "+y"
			case 3:
				dir = "-y"
			}
			return fmt.Sprintf("The direction of the abnormality is in the %s direction.", dir)
		case 1:
			return fmt.Sprintf("The length of the side with abnormality is %dmm.", msg)
		case 2:
			return fmt.Sprintf("The height of the side with abnormality is %dmm.", msg)
		}
		return "Too many mission() calls"

	case Data:
		switch curr {
		case 0:
			return fmt.Sprintf("The duty cycle is %d%%.", msg)
		case 1:
			state := unknownValue
			switch msg {
			case 0:
				state = "MAGNETIC"
			case 1:
				state = "NOT MAGNETIC"
			}
			return fmt.Sprintf("The disk is %s.", state)
		}
		return "Too many mission() calls"

	case Material:
		switch curr {
		case 0:
			weight := unknownValue
			switch msg {
			case 0:
				weight = "HEAVY"
			case 1:
				weight = "MEDIUM"
			case 2:
				weight = "LIGHT"
			}
			return fmt.Sprintf("The weight of the material is %s.", weight)
		case 1:
			squish := unknownValue
			switch msg {
			case 0:
				squish = "SQUISHY"
			case 1:
				squish = "NOT SQUISHY"
			}
			return fmt.Sprintf("The material is %s.", squish)
		}
		return "Too many mission() calls"

	case Fire:
		switch curr {
		case 0:
			return fmt.Sprintf("The number of candles alit is %d.", msg)
		case 1:
			topo := unknownValue
			switch msg {
			case 0:
				topo = "A"
			case 1:
				topo = "B"
			case 2:
				topo = "C"
			}
			return "The topography of the fire mission is: " + topo
		}
		return "Too many mission() calls"

	case Water:
		switch curr {
		case 0:
			return fmt.Sprintf("The depth of the water is %dmm.", msg)
		case 1:
			kind := unknownValue
			switch msg {
			case 0:
				kind = "FRESH and UNPOLLUTED"
			case 1:
				kind = "FRESH and POLLUTED"
			case 2:
				kind = "SALTY and UNPOLLUTED"
			case 3:
				kind = "SALTY and POLLUTED"
			}
			return fmt.Sprintf("The water is %s.", kind)
		}
		return "Too many mission() calls"
	}

	return fmt.Sprintf("ERROR - invalid mission type (%d)", mission)
}
