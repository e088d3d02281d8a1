package mission

import "testing"

func TestMessage(t *testing.T) {
	cases := []struct {
		name    string
		curr    int
		mission int
		raw     string
		want    string
	}{
		{"crash direction +x", 0, CrashSite, "0", "The direction of the abnormality is in the +x direction."},
		{"crash direction -y", 0, CrashSite, "3", "The direction of the abnormality is in the -y direction."},
		{"crash direction out of range", 0, CrashSite, "9", "The direction of the abnormality is in the ????? direction."},
		{"crash length", 1, CrashSite, "240", "The length of the side with abnormality is 240mm."},
		{"crash height", 2, CrashSite, "55", "The height of the side with abnormality is 55mm."},
		{"crash too many", 3, CrashSite, "1", "Too many mission() calls"},

		{"data duty cycle", 0, Data, "42", "The duty cycle is 42%."},
		{"data magnetic", 1, Data, "0", "The disk is MAGNETIC."},
		{"data not magnetic", 1, Data, "1", "The disk is NOT MAGNETIC."},
		{"data magnetism out of range", 1, Data, "5", "The disk is ?????."},

		{"material heavy", 0, Material, "0", "The weight of the material is HEAVY."},
		{"material light", 0, Material, "2", "The weight of the material is LIGHT."},
		{"material squishy", 1, Material, "0", "The material is SQUISHY."},
		{"material too many", 2, Material, "0", "Too many mission() calls"},

		{"fire candles", 0, Fire, "3", "The number of candles alit is 3."},
		{"fire topography B", 1, Fire, "1", "The topography of the fire mission is: B"},
		{"fire topography out of range", 1, Fire, "7", "The topography of the fire mission is: ?????"},

		{"water depth", 0, Water, "120", "The depth of the water is 120mm."},
		{"water salty polluted", 1, Water, "3", "The water is SALTY and POLLUTED."},
		{"water out of range", 1, Water, "8", "The water is ?????."},

		{"invalid mission type", 0, 9, "0", "ERROR - invalid mission type (9)"},
		{"non-numeric value", 0, CrashSite, "left", "ERROR - invalid mission call"},
		{"whitespace tolerated", 1, CrashSite, " 12 ", "The length of the side with abnormality is 12mm."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Message(tc.curr, tc.mission, tc.raw); got != tc.want {
				t.Fatalf("Message(%d, %d, %q) = %q, want %q", tc.curr, tc.mission, tc.raw, got, tc.want)
			}
		})
	}
}
