package config

// DefaultSources is the built-in, ordered list of catalog source endpoints used
// when the configuration does not provide its own list.
var DefaultSources = []string{
	"https://raw.githubusercontent.com/WhySooooFurious/Ultimate-Sideloading-Guide/refs/heads/main/raw-files/app-repo.json",
	"https://esign.yyyue.xyz/app.json",
	"https://raw.githubusercontent.com/vizunchik/AltStoreRus/master/apps.json",
	"https://qnblackcat.github.io/AltStore/apps.json",
	"https://randomblock1.com/altstore/apps.json",
	"https://wuxu1.github.io/wuxu-complete-plus.json",
	"https://ipa.cypwn.xyz/cypwn.json",
	"https://driftywinds.github.io/AltStore/apps.json",
	"https://hann8n.github.io/JackCracks/MovieboxPro.json",
	"https://raw.githubusercontent.com/TheNightmanCodeth/chromium-ios/master/altstore-source.json",
	"https://repository.apptesters.org/",
	"https://aio.yippee.rip/repo.json",
	"https://community-apps.sidestore.io/sidecommunity.json",
	"https://raw.githubusercontent.com/arichornloverALT/arichornloveralt.github.io/main/apps2.json",
	"https://raw.githubusercontent.com/arichornloveralt/arichornloveralt.github.io/main/apps.json",
	"https://raw.githubusercontent.com/lo-cafe/winston-altstore/main/apps.json",
	"https://qingsongqian.github.io/all.html",
	"https://tiny.one/SpotC",
	"https://theodyssey.dev/altstore/odysseysource.json",
	"https://provenance-emu.com/apps.json",
	"https://ish.app/altstore.json",
	"https://raw.githubusercontent.com/Balackburn/YTLitePlusAltstore/main/apps.json",
	"https://raw.githubusercontent.com/whoeevee/EeveeSpotify/swift/repo.json",
	"https://altstore.oatmealdome.me/",
	"https://alts.lao.sb/",
	"https://xitrix.github.io/iTorrent/AltStore.json",
	"https://driftywinds.github.io/repos/esign.json",
	"https://github.com/khcrysalis/Feather/raw/main/app-repo.json",
	"https://appstore.nabzclan.vip/repos/altstore.php",
	"https://flyinghead.github.io/flycast-builds/altstore.json",
	"https://alt.crystall1ne.dev/",
	"https://apps.sidestore.io/",
	"https://repos.yattee.stream/alt/apps.json",
	"https://alt.thatstel.la/",
	"https://repo.ethsign.fyi",
}

// DefaultSuffixes are the path suffixes tried, in order, against each source
// endpoint until one of them returns a usable catalog.
var DefaultSuffixes = []string{
	"",
	"/apps.json",
	"/app.json",
	"/repo.json",
	"/altstore.json",
	"/index.json",
	"/packages.json",
	"/app-repo.json",
	"/alt.json",
	"/altstore.php",
}
