package parjpeg

// JPEG marker codes (ITU-T T.81 table B.1).
const (
	markerSOI  = 0xffd8 // start of image
	markerEOI  = 0xffd9 // end of image
	markerSOF0 = 0xffc0 // baseline DCT frame
	markerDHT  = 0xffc4 // define Huffman tables
	markerDQT  = 0xffdb // define quantization tables
	markerDRI  = 0xffdd // define restart interval
	markerSOS  = 0xffda // start of scan
	markerAPP0 = 0xffe0 // JFIF application segment
	markerRST0 = 0xffd0 // restart 0..7
)
